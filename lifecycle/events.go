// Package lifecycle builds the synthetic events a native WebView emits and
// dispatches them to the handlers attached to a WebView in native order.
package lifecycle

// NavigationTypeOther is the only navigation type this emulation reports.
const NavigationTypeOther = "other"

// EventBase carries the fields every synthesized event is stamped with. It
// is read from the live document right before an event is built.
type EventBase struct {
	URL   string
	Title string
}

// NativeEvent holds the fields shared by every WebView navigation event.
type NativeEvent struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Loading        bool   `json:"loading"`
	CanGoBack      bool   `json:"canGoBack"`
	CanGoForward   bool   `json:"canGoForward"`
	LockIdentifier int    `json:"lockIdentifier"`
}

// Navigation is the payload of load start, load end and navigation state
// change events.
type Navigation struct {
	NativeEvent
	NavigationType string `json:"navigationType"`
}

// Progress is the payload of load progress events.
type Progress struct {
	NativeEvent
	Progress float64 `json:"progress"`
}

// WebViewError is the payload of error events.
type WebViewError struct {
	NativeEvent
	Description string `json:"description"`
	Code        int    `json:"code"`
}

// HTTPError is the payload of HTTP error events.
type HTTPError struct {
	NativeEvent
	Description string `json:"description"`
	StatusCode  int    `json:"statusCode"`
}

// Message is the payload of message events.
type Message struct {
	NativeEvent
	Data string `json:"data"`
}

// ShouldStartLoadRequest is handed to OnShouldStartLoadWithRequest.
type ShouldStartLoadRequest struct {
	Navigation
	IsTopFrame bool `json:"isTopFrame"`
}

// SyntheticEvent mirrors the React Native event wrapper.
type SyntheticEvent[E any] struct {
	NativeEvent E `json:"nativeEvent"`
}

func nativeEvent(base EventBase, loading bool) NativeEvent {
	return NativeEvent{
		URL:            base.URL,
		Title:          base.Title,
		Loading:        loading,
		LockIdentifier: 1,
	}
}

// NewLoadStartEvent builds the event fired when a load cycle begins.
func NewLoadStartEvent(base EventBase) SyntheticEvent[Navigation] {
	return SyntheticEvent[Navigation]{NativeEvent: Navigation{
		NativeEvent:    nativeEvent(base, true),
		NavigationType: NavigationTypeOther,
	}}
}

// NewLoadEndEvent builds the event fired once the document has loaded.
func NewLoadEndEvent(base EventBase) SyntheticEvent[Navigation] {
	return SyntheticEvent[Navigation]{NativeEvent: Navigation{
		NativeEvent:    nativeEvent(base, false),
		NavigationType: NavigationTypeOther,
	}}
}

// NewLoadProgressEvent builds a progress event. Pass 1 for a finished load.
func NewLoadProgressEvent(base EventBase, progress float64) SyntheticEvent[Progress] {
	return SyntheticEvent[Progress]{NativeEvent: Progress{
		NativeEvent: nativeEvent(base, false),
		Progress:    progress,
	}}
}

// NewErrorEvent builds an error event. A code of 0 is reported as 1.
func NewErrorEvent(base EventBase, description string, code int) SyntheticEvent[WebViewError] {
	if code == 0 {
		code = 1
	}
	return SyntheticEvent[WebViewError]{NativeEvent: WebViewError{
		NativeEvent: nativeEvent(base, false),
		Description: description,
		Code:        code,
	}}
}

// NewHTTPErrorEvent builds the event reported when a remote source answers
// with a non-2xx status.
func NewHTTPErrorEvent(description string, statusCode int, url string) SyntheticEvent[HTTPError] {
	return SyntheticEvent[HTTPError]{NativeEvent: HTTPError{
		NativeEvent: nativeEvent(EventBase{URL: url}, false),
		Description: description,
		StatusCode:  statusCode,
	}}
}

// NewMessageEvent builds a message event carrying data.
func NewMessageEvent(base EventBase, data string) SyntheticEvent[Message] {
	return SyntheticEvent[Message]{NativeEvent: Message{
		NativeEvent: nativeEvent(base, false),
		Data:        data,
	}}
}

// NewShouldStartLoadRequest builds the request passed to
// OnShouldStartLoadWithRequest. The URL doubles as title.
func NewShouldStartLoadRequest(url string) ShouldStartLoadRequest {
	return ShouldStartLoadRequest{
		Navigation: Navigation{
			NativeEvent:    nativeEvent(EventBase{URL: url, Title: url}, false),
			NavigationType: NavigationTypeOther,
		},
		IsTopFrame: false,
	}
}
