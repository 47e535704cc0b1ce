package browser

import (
	"encoding/json"
	"fmt"

	"github.com/byteowlz/queryflow/internal/dom"
)

// bindingName is the runtime binding the injected observer reports through.
const bindingName = "__queryflowReport"

// refAttribute tags scanned marker elements so later calls can address them.
const refAttribute = "data-queryflow-ref"

const (
	reportMutations = "mutations"
	reportReady     = "ready"
	reportUnload    = "unload"
)

// report is one message from the injected observer.
type report struct {
	Type  string          `json:"type"`
	URL   string          `json:"url,omitempty"`
	Title string          `json:"title,omitempty"`
	Added []dom.AddedNode `json:"added,omitempty"`
}

func parseReport(payload string) (report, error) {
	var r report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return report{}, fmt.Errorf("malformed observer report: %w", err)
	}
	switch r.Type {
	case reportMutations, reportReady, reportUnload:
		return r, nil
	default:
		return report{}, fmt.Errorf("unknown observer report type: %q", r.Type)
	}
}

// jsValue encodes v as a JavaScript literal.
func jsValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

const observerTemplate = `(function (selector, binding) {
  if (window.__queryflowObserver) return true;
  const report = (msg) => {
    try { window[binding](JSON.stringify(msg)); } catch (e) {}
  };
  const observer = new MutationObserver((mutations) => {
    const added = [];
    for (const m of mutations) {
      for (const n of m.addedNodes) {
        if (n.nodeType !== Node.ELEMENT_NODE) continue;
        added.push({
          element: true,
          matches: !!(n.matches && n.matches(selector)),
          contains: !!(n.querySelector && n.querySelector(selector)),
        });
      }
    }
    if (added.length > 0) report({ type: "mutations", added: added });
  });
  window.__queryflowObserver = observer;
  const start = () => {
    observer.observe(document.body || document.documentElement, { childList: true, subtree: true });
    report({ type: "ready", url: location.href, title: document.title });
  };
  if (document.readyState === "loading") {
    document.addEventListener("DOMContentLoaded", start, { once: true });
  } else {
    start();
  }
  window.addEventListener("beforeunload", () => {
    observer.disconnect();
    report({ type: "unload", url: location.href });
  });
  return true;
})(%s, %s)`

// observerScript returns the script installed in every document of the tab.
func observerScript(marker dom.Marker) string {
	return fmt.Sprintf(observerTemplate, jsValue(marker.Selector()), jsValue(bindingName))
}

// scanTemplate tags every marker with a ref unique within the document. A
// ref already held by an earlier marker (a cloned node) is replaced.
const scanTemplate = `(function (selector, attr) {
  const out = [];
  const seen = new Set();
  document.querySelectorAll(selector).forEach((el) => {
    let ref = el.getAttribute(attr);
    if (!ref || seen.has(ref)) {
      do {
        window.__queryflowSeq = (window.__queryflowSeq || 0) + 1;
        ref = "q" + window.__queryflowSeq;
      } while (document.querySelector("[" + attr + "=\"" + ref + "\"]"));
      el.setAttribute(attr, ref);
    }
    seen.add(ref);
    out.push({ ref: ref, text: el.innerText || "" });
  });
  return out;
})(%s, %s)`

type scannedElement struct {
	Ref  string `json:"ref"`
	Text string `json:"text"`
}

func scanScript(marker dom.Marker) string {
	return fmt.Sprintf(scanTemplate, jsValue(marker.Selector()), jsValue(refAttribute))
}

// elementTemplate runs body with el bound to the element tagged ref. It
// yields {ok: false} once the element left the page.
const elementTemplate = `(function (attr, ref, arg) {
  const el = document.querySelector("[" + attr + "=\"" + CSS.escape(ref) + "\"]");
  if (!el) return { ok: false };
  %s
})(%s, %s, %s)`

type elementResult struct {
	OK     bool              `json:"ok"`
	Values map[string]string `json:"values,omitempty"`
}

func elementScript(ref string, arg any, body string) string {
	return fmt.Sprintf(elementTemplate, body, jsValue(refAttribute), jsValue(ref), jsValue(arg))
}

const (
	scrollBody = `el.scrollIntoView({ behavior: "smooth", block: "center", inline: "nearest" });
  return { ok: true };`

	getStyleBody = `const values = {};
  for (const p of arg) values[p] = el.style.getPropertyValue(p);
  return { ok: true, values: values };`

	setStyleBody = `for (const [p, v] of Object.entries(arg)) {
    if (v === "") el.style.removeProperty(p); else el.style.setProperty(p, v);
  }
  if (el.getAttribute("style") === "") el.removeAttribute("style");
  return { ok: true };`
)
