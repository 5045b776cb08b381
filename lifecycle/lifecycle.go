package lifecycle

import (
	"encoding/json"
	"fmt"
)

// NonStringMessageDescription is reported through OnError when a page posts
// a message that is not a string.
const NonStringMessageDescription = "WebView: the argument of postMessage must be a string"

// Handlers is the set of user callbacks a DOM backend dispatches to. Every
// field is optional.
type Handlers struct {
	OnLoadStart                  func(SyntheticEvent[Navigation])
	OnLoad                       func(SyntheticEvent[Navigation])
	OnLoadEnd                    func(SyntheticEvent[Navigation])
	OnLoadProgress               func(SyntheticEvent[Progress])
	OnError                      func(SyntheticEvent[WebViewError])
	OnMessage                    func(SyntheticEvent[Message])
	OnNavigationStateChange      func(Navigation)
	OnShouldStartLoadWithRequest func(ShouldStartLoadRequest) bool
}

// HandleLoadStart calls OnLoadStart then OnNavigationStateChange.
func HandleLoadStart(h Handlers, base EventBase) {
	start := NewLoadStartEvent(base)
	if h.OnLoadStart != nil {
		h.OnLoadStart(start)
	}
	if h.OnNavigationStateChange != nil {
		h.OnNavigationStateChange(start.NativeEvent)
	}
}

// HandleLoadEnd calls OnLoadProgress (progress 1), OnLoad, OnLoadEnd and
// OnNavigationStateChange, in that order.
func HandleLoadEnd(h Handlers, base EventBase) {
	end := NewLoadEndEvent(base)
	progress := NewLoadProgressEvent(base, 1)
	if h.OnLoadProgress != nil {
		h.OnLoadProgress(progress)
	}
	if h.OnLoad != nil {
		h.OnLoad(end)
	}
	if h.OnLoadEnd != nil {
		h.OnLoadEnd(end)
	}
	if h.OnNavigationStateChange != nil {
		h.OnNavigationStateChange(end.NativeEvent)
	}
}

// HandleHTTPError reports a failed remote source to onHTTPError.
func HandleHTTPError(onHTTPError func(SyntheticEvent[HTTPError]), description string, statusCode int, url string) {
	if onHTTPError != nil {
		onHTTPError(NewHTTPErrorEvent(description, statusCode, url))
	}
}

// HandlePostMessage delivers a message posted by the page. A non-string
// payload raises OnError first and is still delivered to OnMessage in its
// JSON form, as legacy WebViews did.
func HandlePostMessage(h Handlers, base EventBase, message any) {
	data, ok := message.(string)
	if !ok {
		if h.OnError != nil {
			h.OnError(NewErrorEvent(base, NonStringMessageDescription, 1))
		}
		data = stringify(message)
	}
	if h.OnMessage != nil {
		h.OnMessage(NewMessageEvent(base, data))
	}
}

// ShouldStartLoad asks predicate whether a navigation to url may proceed.
// A nil predicate allows everything.
func ShouldStartLoad(predicate func(ShouldStartLoadRequest) bool, url string) bool {
	if predicate == nil {
		return true
	}
	return predicate(NewShouldStartLoadRequest(url))
}

func stringify(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
