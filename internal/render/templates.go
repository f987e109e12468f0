package render

const fragments = `
{{define "loading"}}<div class="analysis-loading">
<h3>🔄 Processing Quarry Area</h3>
<div class="spinner"></div>
<p>Downloading elevation data and calculating depth...</p>
</div>{{end}}

{{define "status"}}<div class="analysis-status"><p>{{.}}</p></div>{{end}}

{{define "banner"}}<div class="analysis-banner banner-{{.Severity}}" role="alert"><p>{{icon .Severity}} {{safe .Message}}</p></div>{{end}}

{{define "elevation"}}<div class="realtime-results">
<h3>📡 Real-time Satellite Data</h3>
<table>
<thead><tr><th>📍 Elevation Range</th><th>🏔️ Max Depth</th></tr></thead>
<tbody><tr><td>{{fixed .MinElevation 1}}m - {{fixed .MaxElevation 1}}m</td><td>{{fixed .Depth 1}} meters</td></tr></tbody>
</table>
<p class="caption">🛰️ Data sourced from satellite elevation models</p>
</div>{{end}}

{{define "depth"}}<div class="depth-report{{if .Fallback}} depth-report-fallback{{end}}">
<h3>🏔️ {{if .Fallback}}Depth Finder Estimate (analysis unavailable){{else}}Depth Finder Analysis Complete{{end}}</h3>
<table>
<thead><tr><th>📏 MAX DEPTH</th><th>📊 AVG DEPTH</th></tr></thead>
<tbody>
<tr><td><strong>{{fixed .Stats.MaxDepth 1}}m</strong></td><td><strong>{{fixed .Stats.MeanDepth 1}}m</strong></td></tr>
<tr><td>Range: {{fixed .Stats.DepthRange 1}}m</td><td>Median: {{fixed .Stats.MedianDepth 1}}m</td></tr>
</tbody>
</table>
<h4>📈 Real Terrain Analysis</h4>
<table>
<tbody>
<tr><td>🔼 Original Ground</td><td>{{fixed .Stats.OriginalSurfaceElevation 1}}m</td></tr>
<tr><td>🔽 Quarry Bottom</td><td>{{fixed .Stats.QuarryBottomElevation 1}}m</td></tr>
<tr><td>📊 Depth Range</td><td>{{fixed .Stats.MinDepth 1}}m - {{fixed .Stats.MaxDepth 1}}m</td></tr>
<tr><td>🛰️ Data Points</td><td>{{integer .Stats.PixelCount}} pixels analyzed</td></tr>
</tbody>
</table>
<h4>📊 Volume &amp; Area Analysis</h4>
<table>
<tbody>
<tr><td>📐 Total Area</td><td>{{integer .Stats.TotalAreaM2}} m²</td></tr>
<tr><td>⛰️ Excavation Volume</td><td>{{integer .Stats.VolumeM3}} m³</td></tr>
<tr><td>🎯 Surface (Gradient Descent)</td><td>{{fixed .Stats.SurfaceGradientDescent 1}}m</td></tr>
<tr><td>🏔️ Surface (Original)</td><td>{{fixed .Stats.SurfaceOriginalMethod 1}}m</td></tr>
</tbody>
</table>
</div>{{end}}

{{define "visualization"}}<div class="depth-visualization">
<h4>🎨 Real Depth Visualization</h4>
<p>Click image for Full Screen Analysis</p>
<img src="{{.}}" alt="Real Quarry Depth Analysis" data-viewer="zoom pan rotate fullscreen">
</div>{{end}}

{{define "figure"}}<div class="elevation-figure"><img src="{{.}}" alt="Elevation heat map"></div>{{end}}

{{define "upload"}}<div class="upload-report">
<h3>✅ Analysis Complete!</h3>
<table>
<thead><tr><th>Volume</th><th>Max Depth</th><th>Area</th><th>Min Elevation</th></tr></thead>
<tbody><tr>
<td id="metric-volume">{{integer .DepthStats.VolumeM3}} m³</td>
<td id="metric-depth">{{fixed .DepthStats.MaxDepth 2}} m</td>
<td id="metric-area">{{hectares .DepthStats.TotalAreaM2}} ha</td>
<td id="metric-elev">{{fixed .DepthStats.MinElevation 1}} m</td>
</tr></tbody>
</table>
{{if .HeatmapURL}}<div class="zoom-container">
<img src="{{.HeatmapURL}}" alt="Quarry Heatmap">
<span class="zoom-hint">Analysis of {{.Filename}}</span>
</div>{{end}}
</div>{{end}}

{{define "scan"}}<div class="scan-results">
<p>✅ Found {{len .}} quarry sites in this area!</p>
<ul>{{range .}}<li data-lat="{{.Lat}}" data-lng="{{.Lng}}"><strong>{{.Name}}</strong> ({{.Landuse}})</li>{{end}}</ul>
</div>{{end}}

{{define "log"}}<div class="analysis-log" data-autoscroll="bottom">
<div class="analysis-log-title">🖥️ ANALYSIS LOG</div>
{{range .}}<div class="log-entry severity-{{.Severity}}" data-color="{{color .Severity}}"><span class="log-timestamp">[{{clock .Timestamp}}]</span> {{icon .Severity}} {{safe .Message}}</div>
{{end}}</div>{{end}}

{{define "sites"}}<div class="saved-sites-list">
{{if not .}}<div class="saved-sites-empty">No saved sites yet.<br>Draw a polygon and click "Save".</div>
{{else}}{{range .}}<div class="site-item" data-id="{{.ID}}">
<div class="site-info"><h4>{{.Name}}</h4><p>📅 {{.Date}}</p></div>
<button class="load-btn" data-action="load" data-id="{{.ID}}">Load</button>
<button class="load-btn delete-btn" data-action="delete" data-id="{{.ID}}">Delete</button>
</div>
{{end}}{{end}}</div>{{end}}
`
