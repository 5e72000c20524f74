package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/precisionpour/pour-kiosk/internal/status"
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
	"screenOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"money": func(cost float32, currency string) string {
		symbol := "£"
		if currency == "USD" {
			symbol = "$"
		}
		return fmt.Sprintf("%s%.2f", symbol, cost)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Pour Kiosk</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.pouring { color: green; font-weight: bold; }
.idle { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Pour Kiosk {{.Config.DeviceID}}</h1>

<h2>Screen</h2>
<table>
<tr><th>State</th><td class="{{if eq (screenOrUnknown .Screen) "POURING"}}pouring{{else if eq (screenOrUnknown .Screen) "UNKNOWN"}}unknown{{else}}idle{{end}}">{{screenOrUnknown .Screen}}</td></tr>
</table>

{{if .Pour.Active}}<h2>Active Pour</h2>
<table>
<tr><th>Transaction</th><td>{{.Pour.ID}}</td></tr>
<tr><th>Volume</th><td>{{printf "%.1f" .Pour.VolumeML}} mL</td></tr>
<tr><th>Flow Rate</th><td>{{printf "%.1f" .Pour.RateMLPerMin}} mL/min</td></tr>
<tr><th>Cost</th><td>{{money .Pour.Cost .Pour.Currency}}</td></tr>
</table>{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}} — {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>
<tr><th>Signal</th><td>{{.Network.RSSI}} dBm ({{.Network.SignalBars}}/4 bars)</td></tr>{{end}}
</table>

<h2>Pour Counts</h2>
<table>
<tr><th>Started</th><td>{{.Counts.Started}}</td></tr>
<tr><th>Finished</th><td>{{.Counts.Finished}}</td></tr>
<tr><th>Cancelled</th><td>{{.Counts.Cancelled}}</td></tr>
<tr><th>Rejected</th><td>{{.Counts.Rejected}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Lifetime Pulses</th><td>{{.LifetimePulses}}</td></tr>
<tr><th>Faults</th><td>{{.FaultCount}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Calibration</th><td>{{printf "%.0f" .Config.PulsesPerLiter}} pulses/L</td></tr>
<tr><th>Pay URL</th><td>{{.Config.PayURL}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
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
