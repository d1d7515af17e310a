package panel

import "html/template"

var pageTemplate = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<script src="https://cdn.tailwindcss.com"></script>
<style>
:root { --color-accent: #3182b0; }
.power-icon-on { color: #86efac; filter: drop-shadow(0 0 6px #22c55e); }
.power-icon-off { color: #fca5a5; }
button:disabled, input:disabled { opacity: 0.5; cursor: not-allowed; }
</style>
</head>
<body class="bg-slate-900 text-white min-h-screen flex items-center justify-center p-4">
<main class="w-full max-w-md space-y-6">
  <h1 class="text-2xl font-bold text-center">{{.Title}}</h1>

  <section class="bg-slate-800 rounded-xl p-4 grid grid-cols-2 gap-4 text-center">
    <div>
      <p class="text-sm text-slate-400">Temperature</p>
      <p id="temperature" class="text-3xl font-semibold">{{.View.Temperature}}</p>
    </div>
    <div>
      <p class="text-sm text-slate-400">Humidity</p>
      <p id="humidity" class="text-3xl font-semibold">{{.View.Humidity}}</p>
    </div>
    <div class="col-span-2 flex items-center justify-center gap-2">
      <span class="text-sm text-slate-400">Water level</span>
      <span id="waterLevel" class="{{.View.Water.Class}}">{{.View.Water.Text}}</span>
    </div>
    <p class="col-span-2 text-xs text-slate-400">Mode: <span id="mode">{{.View.Mode}}</span></p>
  </section>

  <section class="bg-slate-800 rounded-xl p-4 flex flex-col items-center gap-2">
    <button id="powerButton" type="button" class="rounded-full w-20 h-20 bg-slate-700 text-4xl">
      <span id="powerIcon" class="{{.View.Power.IconClass}}">&#x23FB;</span>
    </button>
    <p id="powerText" class="{{.View.Power.TextClass}}">{{.View.Power.Text}}</p>
  </section>

  <section class="bg-slate-800 rounded-xl p-4 flex flex-col items-center gap-2">
    <button id="atomizerButton" type="button" class="px-4 py-2 rounded-lg font-semibold {{.View.Atomizer.ButtonClass}}">
      <span id="atomizerIcon" class="{{.View.Atomizer.IconClass}}">&#x2601;</span>
      <span id="atomizerText">{{.View.Atomizer.ButtonText}}</span>
    </button>
    <p id="atomizerStatus" class="{{.View.Atomizer.StatusClass}}">{{.View.Atomizer.StatusText}}</p>
  </section>

  <section class="bg-slate-800 rounded-xl p-4 space-y-2">
    <label for="fanSlider" class="text-sm text-slate-400">Fan speed</label>
    <input id="fanSlider" type="range" min="0" max="100" value="{{.View.Fan.Percent}}" class="w-full">
    <p id="fanText" class="text-center">{{.View.Fan.Text}}</p>
  </section>

  <ul id="alerts" class="space-y-1"></ul>

  <footer class="text-center space-y-1">
    <p id="statusMessage" class="text-sm">{{.View.Status}}</p>
    <p id="connectionHint" class="text-xs text-red-300{{if not .View.ConnectionHint}} hidden{{end}}">
      The device did not answer. Check that it is powered, on the same network and that device.address is correct.
    </p>
  </footer>
</main>
<script>
const el = (id) => document.getElementById(id);
let dragging = false;

function apply(view) {
  el('temperature').textContent = view.temperature;
  el('humidity').textContent = view.humidity;
  el('waterLevel').textContent = view.water.text;
  el('waterLevel').className = view.water.class;
  el('mode').textContent = view.mode;
  el('powerIcon').className = view.power.icon_class;
  el('powerText').textContent = view.power.text;
  el('powerText').className = view.power.text_class;
  el('atomizerButton').className = 'px-4 py-2 rounded-lg font-semibold ' + view.atomizer.button_class;
  el('atomizerIcon').className = view.atomizer.icon_class;
  el('atomizerText').textContent = view.atomizer.button_text;
  el('atomizerStatus').textContent = view.atomizer.status_text;
  el('atomizerStatus').className = view.atomizer.status_class;
  if (!dragging) {
    el('fanSlider').value = view.fan.percent;
  }
  el('fanText').textContent = view.fan.text;
  el('statusMessage').textContent = view.status;
  el('connectionHint').classList.toggle('hidden', !view.connection_hint);
  const list = el('alerts');
  list.replaceChildren();
  (view.alerts || []).forEach((a) => {
    const item = document.createElement('li');
    item.className = 'text-sm rounded px-2 py-1 ' + (a.severity === 'critical' ? 'bg-red-700' : a.severity === 'warning' ? 'bg-amber-600' : 'bg-slate-700');
    item.textContent = a.message || a.id;
    list.appendChild(item);
  });
}

async function call(method, path, body) {
  try {
    const opts = { method: method, headers: {} };
    if (body !== undefined) {
      opts.headers['Content-Type'] = 'application/json';
      opts.body = JSON.stringify(body);
    }
    const resp = await fetch(path, opts);
    const contentType = resp.headers.get('Content-Type') || '';
    if (contentType.indexOf('application/json') === 0) {
      apply(await resp.json());
    }
  } catch (err) {
    el('statusMessage').textContent = 'Panel unreachable: ' + err;
  }
}

el('powerButton').addEventListener('click', () => call('POST', 'api/power'));
el('atomizerButton').addEventListener('click', () => call('POST', 'api/atomizer'));
el('fanSlider').addEventListener('input', (event) => {
  dragging = true;
  call('POST', 'api/fan/preview', { percent: parseInt(event.target.value, 10) });
});
el('fanSlider').addEventListener('change', (event) => {
  dragging = false;
  call('POST', 'api/fan', { percent: parseInt(event.target.value, 10) });
});

setInterval(() => call('GET', 'api/state'), 1000);
</script>
</body>
</html>
`))
