package control

import (
	"encoding/json"
	"fmt"
)

// BootstrapScript returns the inline script added to rendered pages. Clicking a
// control posts to {sessionBase}/controls/{id}/activate and suppresses the
// enclosing link's navigation, then mirrors the control state until it is idle
// again.
func BootstrapScript(sessionBase string, pollMillis int) string {
	base, _ := json.Marshal(sessionBase)
	return fmt.Sprintf(`(function () {
  var base = %s;
  function sync(btn, id) {
    fetch(base + "/controls", {credentials: "same-origin"})
      .then(function (r) { return r.json(); })
      .then(function (list) {
        var c = (list || []).find(function (x) { return x.item_id === id; });
        if (!c) { return; }
        btn.textContent = c.state.label;
        btn.disabled = c.state.disabled;
        if (c.state.phase === "failure" && c.last_message && !btn.dataset.rgAlerted) {
          btn.dataset.rgAlerted = "1";
          alert(c.last_message);
        }
        if (c.state.phase !== "idle") {
          setTimeout(function () { sync(btn, id); }, %d);
        } else {
          delete btn.dataset.rgAlerted;
        }
      });
  }
  document.addEventListener("click", function (e) {
    var btn = e.target.closest && e.target.closest(".%s");
    if (!btn) { return; }
    e.preventDefault();
    e.stopPropagation();
    if (btn.disabled) { return; }
    var id = btn.getAttribute("%s");
    btn.textContent = "…";
    btn.disabled = true;
    fetch(base + "/controls/" + encodeURIComponent(id) + "/activate", {method: "POST", credentials: "same-origin"})
      .then(function () { sync(btn, id); });
  }, true);
})();`, base, pollMillis, ClassName, ItemAttr)
}
