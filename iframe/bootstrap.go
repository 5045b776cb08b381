package iframe

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chrisuehlinger/ersatz/html"
)

// BootstrapMode tells how the engine brings its scripts into the frame.
type BootstrapMode int

const (
	// BootstrapLive injects scripts into the live content window: the
	// messaging shim and the before-content script once the window exists,
	// the injected script after the load event.
	BootstrapLive BootstrapMode = iota
	// BootstrapSrcDoc splices a bootstrap script right after <body> of
	// inline documents. The frame notifies the parent of its lifecycle
	// with dom-event messages.
	BootstrapSrcDoc
)

func (m BootstrapMode) String() string {
	if m == BootstrapSrcDoc {
		return "srcdoc"
	}
	return "live"
}

// ParseBootstrapMode parses the String form of a mode.
func ParseBootstrapMode(s string) (BootstrapMode, bool) {
	switch s {
	case "live", "":
		return BootstrapLive, true
	case "srcdoc":
		return BootstrapSrcDoc, true
	}
	return BootstrapLive, false
}

// Names of the lifecycle notifications a bootstrapped frame posts.
const (
	DOMEventType          = "dom-event"
	EventDOMContentLoaded = "DOMContentLoaded"
	EventLoad             = "load"
)

// BootstrapParams are the values baked into bootstrap scripts.
type BootstrapParams struct {
	FrameID      int
	InstanceID   int
	TargetOrigin string

	InjectedJavaScript                    string
	InjectedJavaScriptBeforeContentLoaded string
}

// jsString encodes s as a JavaScript string literal. The encoding escapes
// <, > and &, so the literal cannot close the surrounding script element.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// MessagingShim returns a script defining window.ReactNativeWebView, whose
// postMessage forwards to the parent as {message, frameId, instanceId}.
func MessagingShim(p BootstrapParams) string {
	return fmt.Sprintf(`(function () {
  var frameId = %d, instanceId = %d, targetOrigin = %s;
  window.ReactNativeWebView = {
    postMessage: function (message) {
      window.parent.postMessage({ message: message, frameId: frameId, instanceId: instanceId }, targetOrigin);
    }
  };
})();`, p.FrameID, p.InstanceID, jsString(p.TargetOrigin))
}

// Bootstrap returns the script spliced into srcdoc documents: the
// messaging shim, the before-content script run on DOMContentLoaded, and
// the injected script run on load, each event being reported to the
// parent.
func Bootstrap(p BootstrapParams) string {
	var b strings.Builder
	b.WriteString(MessagingShim(p))
	fmt.Fprintf(&b, `
(function () {
  var frameId = %d, instanceId = %d, targetOrigin = %s;
  function notify(name) {
    window.parent.postMessage({ type: %s, name: name, frameId: frameId, instanceId: instanceId }, targetOrigin);
  }
  function run(code) {
    if (!code) return;
    var script = document.createElement('script');
    script.textContent = code;
    document.body.appendChild(script);
  }
  window.addEventListener('DOMContentLoaded', function () {
    run(%s);
    notify(%s);
  });
  window.addEventListener('load', function () {
    run(%s);
    notify(%s);
  });
})();`,
		p.FrameID, p.InstanceID, jsString(p.TargetOrigin), jsString(DOMEventType),
		jsString(p.InjectedJavaScriptBeforeContentLoaded), jsString(EventDOMContentLoaded),
		jsString(p.InjectedJavaScript), jsString(EventLoad))
	return b.String()
}

// SpliceBootstrap inserts the bootstrap script of p right after the opening
// body tag of doc.
func SpliceBootstrap(doc string, p BootstrapParams) string {
	return html.SpliceAfterBody(doc, "<script>"+Bootstrap(p)+"</script>")
}
