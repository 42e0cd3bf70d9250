package visualize

import (
	"bytes"
	"encoding/json"
	"html/template"
)

// artifactTemplate renders a self-contained HTML artifact: the figure
// spec as inline JSON, a Plotly.newPlot call, and — only when the figure
// carries TILED series — the embedded zoom-loader script (spec §4.7).
var artifactTemplate = template.Must(template.New("artifact").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title>
<script src="https://cdn.plot.ly/plotly-2.35.2.min.js"></script>
</head>
<body>
<div id="chart" style="width:100%;height:100vh;"></div>
<script>
const figure = {{.FigureJSON}};
Plotly.newPlot('chart', figure.traces, figure.layout, {responsive: true});
{{if .HasZoomLoader}}
const zoomSeries = {{.ZoomSeriesJSON}};
const zoomEndpoint = {{.ZoomEndpointJSON}};
` + zoomLoaderJS + `
{{end}}
</script>
</body>
</html>
`))

type artifactData struct {
	Title            string
	FigureJSON       template.JS
	ZoomSeriesJSON   template.JS
	ZoomEndpointJSON template.JS
	HasZoomLoader    bool
}

// RenderHTML builds the self-contained HTML artifact for fig, wiring the
// zoom loader (when present) to call back into endpoint (the Zoom Query
// Surface's base URL) for the given visualization id.
func RenderHTML(fig *Figure, endpoint, vizID string) (string, error) {
	figureJSON, err := json.Marshal(struct {
		Traces []Trace `json:"traces"`
		Layout Layout  `json:"layout"`
	}{fig.Traces, fig.Layout})
	if err != nil {
		return "", err
	}
	seriesJSON, err := json.Marshal(fig.ZoomSeries)
	if err != nil {
		return "", err
	}
	endpointJSON, err := json.Marshal(struct {
		Base  string `json:"base"`
		VizID string `json:"viz_id"`
	}{endpoint, vizID})
	if err != nil {
		return "", err
	}

	title := fig.Layout.Title
	if title == "" {
		title = "Chart"
	}

	var buf bytes.Buffer
	err = artifactTemplate.Execute(&buf, artifactData{
		Title:            title,
		FigureJSON:       template.JS(figureJSON),
		ZoomSeriesJSON:   template.JS(seriesJSON),
		ZoomEndpointJSON: template.JS(endpointJSON),
		HasZoomLoader:    fig.HasZoomLoader,
	})
	return buf.String(), err
}

// zoomLoaderJS implements the deterministic client-side zoom controller
// (spec §4.7 "Zoom loader"): debounced X-range classification into
// overview/tile/raw mode, bearer-token auth, JSON-only responses, and
// in-place trace restyles.
const zoomLoaderJS = `
(function () {
  const DEBOUNCE_MS = 250;
  const RAW_ROW_CAP = 2000000;
  let debounceTimer = null;

  function authToken() {
    try {
      return (window.FD_AUTH_TOKEN || window.localStorage.getItem('fd_auth_token') || '');
    } catch (e) {
      return window.FD_AUTH_TOKEN || '';
    }
  }

  function fetchJSON(url) {
    return fetch(url, { headers: { Authorization: 'Bearer ' + authToken() } }).then(function (resp) {
      const ct = resp.headers.get('content-type') || '';
      if (ct.indexOf('application/json') === -1) {
        throw new Error('zoom loader: refusing non-JSON response from ' + url);
      }
      return resp.json();
    });
  }

  function levelFor(spanRatio, s) {
    if (spanRatio > 0.40) return s.coarsest_level;
    if (spanRatio > 0.12) return s.middle_level;
    return s.finest_level;
  }

  function applyTile(traceIndex, tile) {
    Plotly.restyle('chart', { x: [tile.data['x'] || []], y: [tile.data['y_axis'] || []] }, [traceIndex]);
  }

  function applyRaw(traceIndex, raw) {
    Plotly.restyle('chart', { x: [raw.data[raw.x_axis]], y: [raw.data[raw.y_axis]] }, [traceIndex]);
  }

  function restoreOverview() {
    zoomSeries.forEach(function (s) {
      const url = zoomEndpoint.base + '/viz/' + zoomEndpoint.viz_id + '/series/' + s.series_index + '/tiles?level=' + s.coarsest_level;
      fetchJSON(url).then(function (tile) { applyTile(s.series_index, tile); }).catch(function () {});
    });
  }

  function handleRange(xMin, xMax) {
    zoomSeries.forEach(function (s) {
      const fullSpan = s.x_max - s.x_min;
      if (fullSpan <= 0) return;
      const spanRatio = Math.min(1, Math.max(0, (xMax - xMin) / fullSpan));
      const expectedRows = s.rows * spanRatio;
      if (expectedRows <= RAW_ROW_CAP) {
        const rawURL = zoomEndpoint.base + '/viz/' + zoomEndpoint.viz_id + '/series/' + s.series_index +
          '/raw?x_min=' + xMin + '&x_max=' + xMax;
        fetchJSON(rawURL).then(function (raw) { applyRaw(s.series_index, raw); }).catch(function () {});
        return;
      }
      const level = levelFor(spanRatio, s);
      const tileURL = zoomEndpoint.base + '/viz/' + zoomEndpoint.viz_id + '/series/' + s.series_index +
        '/tiles?level=' + level + '&x_min=' + xMin + '&x_max=' + xMax;
      fetchJSON(tileURL).then(function (tile) { applyTile(s.series_index, tile); }).catch(function () {});
    });
  }

  const chart = document.getElementById('chart');
  chart.on('plotly_relayout', function (ev) {
    if (ev['xaxis.autorange'] || ev['xaxis.range'] === undefined && ev['xaxis.range[0]'] === undefined) {
      if (ev['xaxis.autorange']) {
        restoreOverview();
      }
      return;
    }
    const xMin = ev['xaxis.range[0]'] !== undefined ? ev['xaxis.range[0]'] : ev['xaxis.range'][0];
    const xMax = ev['xaxis.range[1]'] !== undefined ? ev['xaxis.range[1]'] : ev['xaxis.range'][1];
    clearTimeout(debounceTimer);
    debounceTimer = setTimeout(function () { handleRange(xMin, xMax); }, DEBOUNCE_MS);
  });

  chart.on('plotly_doubleclick', function () { restoreOverview(); });
})();
`
