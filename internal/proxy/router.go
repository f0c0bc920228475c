package proxy

// route identifies one of the vendor surface behaviors.
type route int

const (
	routeUnknown route = iota
	routeStatus
	routeTags
	routeChat
	routeGenerate
)

// label returns the route's metrics/logging name.
func (r route) label() string {
	switch r {
	case routeStatus:
		return "status"
	case routeTags:
		return "tags"
	case routeChat:
		return "chat"
	case routeGenerate:
		return "generate"
	}
	return "unknown"
}

// routes is the exact-match vendor route table keyed by "METHOD /path".
var routes = map[string]route{
	"GET /":              routeStatus,
	"GET /api":           routeStatus,
	"GET /api/":          routeStatus,
	"GET /api/tags":      routeTags,
	"POST /api/chat":     routeChat,
	"POST /api/generate": routeGenerate,
}

// match dispatches a method+path pair. No body inspection happens
// before this point.
func match(method, path string) route {
	return routes[method+" "+path]
}
