package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	group := NewDomainGroup("ledger", "/ledger")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group)
	r.Setup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/ping", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouterUse_AppliesToRegisteredRoutes(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)
	r.Use(func(c *gin.Context) {
		c.Header("X-Probe", "seen")
		c.Next()
	})

	group := NewDomainGroup("ledger", "/ledger")
	group.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.Register(group)
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/ping", nil))

	assert.Equal(t, "seen", w.Header().Get("X-Probe"))
}

func TestDomainGroupUse_ScopedToGroup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	guarded := NewDomainGroup("ops", "/ops")
	guarded.Use(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusForbidden)
	})
	guarded.POST("/runs", func(c *gin.Context) { c.Status(http.StatusOK) })

	open := NewDomainGroup("ledger", "/ledger")
	open.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.Register(guarded).Register(open).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/ops/runs", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ledger/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDomainGroupAccessors(t *testing.T) {
	group := NewDomainGroup("mpesa", "/mpesa")

	assert.Equal(t, "mpesa", group.Name())
	assert.Equal(t, "/mpesa", group.Prefix())
}
