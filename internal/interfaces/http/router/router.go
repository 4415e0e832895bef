package router

import (
	"github.com/gin-gonic/gin"
)

// DefaultAPIVersion is the version segment of /api/<version>
const DefaultAPIVersion = "v1"

// Resource is the route table of one resource below the API prefix
type Resource struct {
	prefix string
	shared []gin.HandlerFunc
	routes []route
}

type route struct {
	method string
	path   string
	chain  []gin.HandlerFunc
}

// NewResource starts a route table mounted at prefix
func NewResource(prefix string) *Resource {
	return &Resource{prefix: prefix}
}

// Use adds middleware run before every route of the resource
func (r *Resource) Use(mw ...gin.HandlerFunc) *Resource {
	r.shared = append(r.shared, mw...)
	return r
}

// Handle adds a route. Nil entries in mw are skipped, so optional
// middleware can be passed unconditionally.
func (r *Resource) Handle(method, path string, h gin.HandlerFunc, mw ...gin.HandlerFunc) *Resource {
	chain := make([]gin.HandlerFunc, 0, len(mw)+1)
	for _, m := range mw {
		if m != nil {
			chain = append(chain, m)
		}
	}
	r.routes = append(r.routes, route{method: method, path: path, chain: append(chain, h)})
	return r
}

func (r *Resource) mount(api *gin.RouterGroup) {
	group := api.Group(r.prefix, r.shared...)
	for _, rt := range r.routes {
		group.Handle(rt.method, rt.path, rt.chain...)
	}
}

// Mount registers resources under /api/<version>. An empty version selects
// DefaultAPIVersion.
func Mount(engine *gin.Engine, version string, resources ...*Resource) {
	if version == "" {
		version = DefaultAPIVersion
	}
	api := engine.Group("/api/" + version)
	for _, r := range resources {
		r.mount(api)
	}
}
