package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/lora-node/internal/status"
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
	"orUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>LoRa Node</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.bad { color: red; }
.pending { color: orange; }
</style>
</head>
<body>
<h1>LoRa Node</h1>

<h2>LoRaWAN</h2>
<table>
<tr><th>Phase</th><td class="{{if .Node.Joined}}ok{{else if eq (printf "%s" .Node.Phase) "JOIN_ABANDONED"}}bad{{else}}pending{{end}}">{{orUnknown (printf "%s" .Node.Phase)}}</td></tr>
<tr><th>Joined</th><td>{{if .Node.Joined}}yes{{else}}no{{end}}</td></tr>
<tr><th>Cold boot</th><td>{{if .Node.ColdBoot}}in progress ({{.Node.AttemptsRemaining}} attempts left){{else}}done{{end}}</td></tr>
<tr><th>Last TX reason</th><td>{{.Node.TxReason}}</td></tr>
<tr><th>Last TX outcome</th><td>{{orUnknown .Node.LastOutcome}}</td></tr>
</table>

<h2>Power</h2>
<table>
<tr><th>Source</th><td>{{if .Node.ExternalPower}}external{{else}}battery{{end}}</td></tr>
<tr><th>Supply</th><td>{{.SupplyMv}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}ok{{else}}bad{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Short presses</th><td>{{.Node.Counts.ShortPresses}}</td></tr>
<tr><th>Reset presses</th><td>{{.Node.Counts.ResetPresses}}</td></tr>
<tr><th>Ignored presses</th><td>{{.Node.Counts.IgnoredPresses}}</td></tr>
<tr><th>Stray pulses</th><td>{{.Node.Counts.StrayPulses}}</td></tr>
<tr><th>Joins OK / failed</th><td>{{.Node.Counts.JoinOK}} / {{.Node.Counts.JoinFailed}}</td></tr>
<tr><th>TX accepted / rejected</th><td>{{.Node.Counts.TxAccepted}} / {{.Node.Counts.TxRejected}}</td></tr>
<tr><th>RX frames</th><td>{{.Node.Counts.RxFrames}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Boot</th><td>{{.BootID}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
{{if .Config.DevEUI}}<tr><th>DevEUI</th><td>{{.Config.DevEUI}}</td></tr>{{end}}
<tr><th>Activation</th><td>{{.Config.Activation}} / {{.Config.MsgType}} / port {{.Config.Port}}</td></tr>
<tr><th>Duty cycle</th><td>{{.Config.DutyCycleS}}s</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Press thresholds</th><td>{{.Config.ShortActionMs}}ms / {{.Config.ResetMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
