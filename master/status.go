package master

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lanscatter/masterd/swarm"
)

// statusCacheTTL and statusRefreshSeconds reproduce the original's exact
// constants: the rendered page is cached for 3s, and carries a <meta
// refresh> tag telling the browser to reload every 4s.
const (
	statusCacheTTL       = 3 * time.Second
	statusRefreshSeconds = 4
)

// possessionColors maps a StatusNode.Possession value to the color legend
// used by the original: black = have, green = downloading, lightgray =
// missing.
var possessionColors = map[float64]string{
	1:   "black",
	0.5: "green",
	0:   "lightgray",
}

var statusTmpl = template.Must(template.New("status").Funcs(template.FuncMap{
	"color": func(v float64) string {
		if c, ok := possessionColors[v]; ok {
			return c
		}
		return "lightgray"
	},
	"avgULTime": func(v float64) string {
		if v < 0 {
			return "–"
		}
		return fmt.Sprintf("%.1f s", v)
	},
}).Parse(statusPageHTML))

const statusPageHTML = `<html><head><meta http-equiv="refresh" content="{{.RefreshSeconds}}"></head>
<body style="font-family: sans-serif; text-align: left;">
<h1>{{.AppName}} swarm status</h1><p>{{.Time}}</p>
{{if .Table.AllHashes}}
<table style="transform: scale(0.7); transform-origin: top left; white-space:nowrap; align: left;">
<tr><th>Node</th>{{range .Table.AllHashes}}<th></th>{{end}}<th>&darr;</th><th>&uarr;</th><th>&#8987;</th></tr>
{{range .Table.Nodes}}<tr><td>{{.Name}}</td>{{range .Possession}}<td style="background: {{color .}}">&nbsp;</td>{{end}}<td>{{.Downloads}}</td><td>{{.Uploads}}</td><td>{{avgULTime .AvgULTime}}</td></tr>
{{end}}</table>
<p>&darr; = active downloads, &uarr; = active uploads, &#8987; = average upload time</p>
{{else}}
(No data. Master is probably still hashing. Try again later.)
{{end}}
</body></html>`

// statusPageData is the template context for statusPageHTML.
type statusPageData struct {
	AppName        string
	Time           string
	RefreshSeconds int
	Table          swarm.StatusTable
}

// statusPage renders swarm.GetStatusTable as HTML, caching the rendered
// bytes for statusCacheTTL so a page full of auto-refreshing browser tabs
// doesn't hammer the coordinator's lock.
type statusPage struct {
	coordinator *swarm.Coordinator
	appName     string

	mu       sync.Mutex
	cached   []byte
	cachedAt time.Time
}

func newStatusPage(coordinator *swarm.Coordinator) *statusPage {
	return &statusPage{coordinator: coordinator, appName: "lanscatter"}
}

func (p *statusPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(p.render())
}

func (p *statusPage) render() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil && time.Since(p.cachedAt) < statusCacheTTL {
		return p.cached
	}

	var buf strings.Builder
	data := statusPageData{
		AppName:        p.appName,
		Time:           time.Now().Format("2006-01-02 15:04:05"),
		RefreshSeconds: statusRefreshSeconds,
		Table:          p.coordinator.GetStatusTable(),
	}
	if err := statusTmpl.Execute(&buf, data); err != nil {
		return []byte("internal error rendering status page")
	}

	p.cached = []byte(buf.String())
	p.cachedAt = time.Now()
	return p.cached
}
