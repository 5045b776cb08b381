package backend

import "github.com/chrisuehlinger/ersatz/source"

// SourceLoaderView renders the outcome of a source resolution: the
// renderError output wrapped in an error view once it failed, the engine
// view built by child once it resolved, and renderLoading before that.
func SourceLoaderView(result source.Result, props Props, child func(source.Normalized) *View) *View {
	var content *View
	switch result.State {
	case source.Failed:
		var rendered *View
		if props.RenderError != nil {
			rendered = props.RenderError("", 0, result.Reason)
		}
		content = NewView("View", ErrorTestID, rendered)
	case source.Resolved:
		content = child(result.Source)
	default:
		if props.RenderLoading != nil {
			content = props.RenderLoading()
		}
	}
	return NewView("View", SourceLoaderTestID, content)
}
