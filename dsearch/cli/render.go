package cli

import (
	"encoding/json"
	"io"

	"github.com/ZanzyTHEbar/drive-search/dsearch/search"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// resultView is the machine readable shape of a search result
type resultView struct {
	Generation string        `json:"generation" yaml:"generation"`
	Root       string        `json:"root" yaml:"root"`
	Fragment   string        `json:"fragment" yaml:"fragment"`
	Complete   bool          `json:"complete" yaml:"complete"`
	Pending    int           `json:"pending,omitempty" yaml:"pending,omitempty"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
	Items      []search.Item `json:"items" yaml:"items"`
	Skipped    []skipView    `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Stats      statsView     `json:"stats" yaml:"stats"`
}

type skipView struct {
	Container string `json:"container" yaml:"container"`
	Error     string `json:"error" yaml:"error"`
}

type statsView struct {
	Containers int64  `json:"containers" yaml:"containers"`
	Pages      int64  `json:"pages" yaml:"pages"`
	Items      int64  `json:"items" yaml:"items"`
	Matches    int64  `json:"matches" yaml:"matches"`
	Errors     int64  `json:"errors" yaml:"errors"`
	Duration   string `json:"duration" yaml:"duration"`
}

func newResultView(res *search.Result) resultView {
	v := resultView{
		Generation: res.Generation.String(),
		Root:       string(res.Query.Root),
		Fragment:   res.Query.Fragment,
		Complete:   res.Complete,
		Pending:    res.Pending,
		Items:      res.Items,
		Stats: statsView{
			Containers: res.Stats.ContainersVisited,
			Pages:      res.Stats.PagesFetched,
			Items:      res.Stats.ItemsSeen,
			Matches:    res.Stats.Matches,
			Errors:     res.Stats.Errors,
			Duration:   res.Stats.Duration.String(),
		},
	}
	if v.Items == nil {
		v.Items = []search.Item{}
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	for _, s := range res.Skipped {
		v.Skipped = append(v.Skipped, skipView{Container: string(s.Container), Error: s.Cause.Error()})
	}
	return v
}

func render(w io.Writer, res *search.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newResultView(res))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newResultView(res)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderTable(w, res)
	}
}

// renderTable prints the matches; the caller adds the match count footer
func renderTable(w io.Writer, res *search.Result) error {
	if len(res.Items) == 0 {
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Type", "ID", "Link"})

	for _, it := range res.Items {
		t.AppendRow(table.Row{it.Name, it.MediaType, it.ID, itemLink(it)})
	}

	t.Render()
	return nil
}

// itemLink picks the most useful URL the store reported
func itemLink(it search.Item) string {
	for _, key := range []string{search.URLView, search.URLContent, search.URLPreview} {
		if u := it.URLs[key]; u != "" {
			return u
		}
	}
	return ""
}
