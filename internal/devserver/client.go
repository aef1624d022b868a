package devserver

import "net/http"

const clientScript = `(function () {
  var es = new EventSource("` + eventsPath + `");
  es.addEventListener("reload", function (e) {
    var ev = JSON.parse(e.data);
    if (!ev.css) {
      location.reload();
      return;
    }
    var stamp = Date.now();
    document.querySelectorAll('link[rel="stylesheet"]').forEach(function (link) {
      var url = new URL(link.href, location.href);
      if (url.origin !== location.origin) return;
      url.searchParams.set("sitepipe", stamp);
      link.href = url.toString();
    });
  });
})();
`

func serveClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write([]byte(clientScript))
}
