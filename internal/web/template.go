package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/gpio-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateClass": func(s interface{}) string {
		switch fmt.Sprint(s) {
		case "RUNNING":
			return "running"
		case "FAILED":
			return "failed"
		case "STOPPED", "DONE":
			return "stopped"
		default:
			return "pending"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>GPIO Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.running { color: green; font-weight: bold; }
.stopped { color: #888; }
.failed { color: red; font-weight: bold; }
.pending { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>GPIO Controller</h1>

<h2>Group</h2>
<table>
<tr><th>Name</th><td>{{.Group}}</td></tr>
<tr><th>State</th><td id="group-state" class="{{stateClass .GroupState}}">{{.GroupState}}</td></tr>
<tr><th>Run</th><td>{{.RunID}}</td></tr>
</table>

<h2>Workers</h2>
<table id="workers">
{{range .Workers}}<tr data-worker="{{.Name}}"><th>{{.Name}}</th><td class="{{stateClass .State}}">{{.State}}</td><td>{{.Err}}</td></tr>
{{else}}<tr><td colspan="3">no workers</td></tr>
{{end}}</table>

<h2>Exits</h2>
<table>
<tr><th>Stopped</th><td id="count-stopped">{{.Counts.Stopped}}</td></tr>
<tr><th>Failed</th><td id="count-failed">{{.Counts.Failed}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Mode</th><td>{{.Config.Mode}}</td></tr>
<tr><th>Chip</th><td>{{.Config.Chip}}</td></tr>
<tr><th>Interval</th><td>{{.Config.IntervalMs}}ms</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Drain timeout</th><td>{{.Config.DrainTimeoutMs}}ms</td></tr>
<tr><th>Stop on first</th><td>{{if .Config.StopOnFirst}}yes{{else}}no{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
<script>
(function() {
  function cls(state) {
    if (state === "RUNNING") return "running";
    if (state === "FAILED") return "failed";
    if (state === "STOPPED" || state === "DONE") return "stopped";
    return "pending";
  }

  function refresh() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(msg) {
      var s = msg.status;
      var g = document.getElementById("group-state");
      g.textContent = s.group_state;
      g.className = cls(s.group_state);
      document.getElementById("count-stopped").textContent = s.exit_counts.stopped;
      document.getElementById("count-failed").textContent = s.exit_counts.failed;
      (s.workers || []).forEach(function(w) {
        var row = document.querySelector('tr[data-worker="' + w.name + '"]');
        if (!row) return;
        var cells = row.getElementsByTagName("td");
        cells[0].textContent = w.state;
        cells[0].className = cls(w.state);
        cells[1].textContent = w.error || "";
      });
    }).catch(function() {});
  }

  setInterval(refresh, 1000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
