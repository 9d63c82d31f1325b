package pgxstat

import "net/http"

// dashboardHandler serves a small read-only status page for one pool:
// occupancy cards and a polling loop against /status and /healthz,
// nothing more.
func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>pgxpool status</title>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --bg:#0f1117;--bg-card:#161b22;--border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;
  --primary:#58a6ff;--green:#3fb950;--red:#f85149;--radius:8px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
.container{max-width:900px;margin:0 auto;padding:24px}
header{display:flex;align-items:center;gap:12px;margin-bottom:24px}
h1{font-size:18px;font-weight:700}
.badge{display:inline-flex;align-items:center;gap:4px;padding:2px 10px;border-radius:12px;font-size:12px;font-weight:600;border:1px solid var(--border)}
.badge-healthy{color:var(--green);border-color:var(--green)}
.badge-unhealthy{color:var(--red);border-color:var(--red)}
.summary{display:grid;grid-template-columns:repeat(3,1fr);gap:16px;margin-bottom:24px}
.card{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);padding:20px}
.card-label{font-size:12px;text-transform:uppercase;letter-spacing:.5px;color:var(--text-muted);margin-bottom:4px}
.card-value{font-size:32px;font-weight:700;line-height:1.2}
table{width:100%;border-collapse:collapse;background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);overflow:hidden}
td,th{padding:10px 16px;text-align:left;border-bottom:1px solid var(--border);font-size:14px}
th{color:var(--text-muted);font-weight:600;text-transform:uppercase;font-size:11px}
tr:last-child td{border-bottom:none}
footer{margin-top:16px;color:var(--text-muted);font-size:12px}
</style>
</head>
<body>
<div class="container">
<header>
  <h1>pgxpool status</h1>
  <span id="health" class="badge">...</span>
</header>
<div class="summary">
  <div class="card"><div class="card-label">Acquired</div><div class="card-value" id="acquired">-</div></div>
  <div class="card"><div class="card-label">Idle</div><div class="card-value" id="idle">-</div></div>
  <div class="card"><div class="card-label">Waiting</div><div class="card-value" id="waiting">-</div></div>
</div>
<table>
<tbody id="rows"></tbody>
</table>
<footer id="footer"></footer>
</div>
<script>
async function refresh(){
  try{
    const [s, h] = await Promise.all([
      fetch('/status').then(r=>r.json()),
      fetch('/healthz').then(r=>r.json()),
    ]);
    document.getElementById('acquired').textContent = s.acquired_conns;
    document.getElementById('idle').textContent = s.idle_conns;
    document.getElementById('waiting').textContent = s.wait_count;
    const badge = document.getElementById('health');
    badge.textContent = h.status;
    badge.className = 'badge ' + (h.status === 'healthy' ? 'badge-healthy' : 'badge-unhealthy');
    const rows = {
      'Pool': s.pool,
      'Max conns': s.max_conns,
      'Initializing': s.initializing_conns,
      'Acquire timeouts': s.acquire_timeouts,
      'Goroutines': s.goroutines,
      'Memory (MB)': s.memory_mb.toFixed(1),
      'Uptime (s)': s.uptime_seconds,
      'Go version': s.go_version,
    };
    document.getElementById('rows').innerHTML = Object.entries(rows)
      .map(([k,v]) => '<tr><td>'+k+'</td><td>'+v+'</td></tr>').join('');
    document.getElementById('footer').textContent = 'last updated ' + new Date().toLocaleTimeString();
  }catch(e){
    document.getElementById('health').textContent = 'unreachable';
    document.getElementById('health').className = 'badge badge-unhealthy';
  }
}
refresh();
setInterval(refresh, 3000);
</script>
</body>
</html>`
