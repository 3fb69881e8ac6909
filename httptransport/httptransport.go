// Package httptransport is the REST façade over the derived views and the
// relational mirror. Only the routes and JSON shapes live here; all
// computation happens in the views layer.
package httptransport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
	"github.com/crates-pro/crates-pro/datastore"
	"github.com/crates-pro/crates-pro/views"
)

// Searcher is the opaque full-text search collaborator.
type Searcher interface {
	// Search returns one ranked page of programs and the total hit count.
	Search(ctx context.Context, keyword string, page, perPage int) ([]cratespro.Program, int, error)
}

// Store is the slice of the relational capability the routes touch
// directly; everything else goes through the views layer.
type Store interface {
	AllPrograms(ctx context.Context) ([]*cratespro.Program, error)
	AllAdvisories(ctx context.Context) ([]cratespro.Advisory, error)
	RecordUploadedCrate(ctx context.Context, email, filename string, uploadedAt time.Time) error
	RecordUploadedURL(ctx context.Context, email, url string, uploadedAt time.Time) error
	UpsertCrateUser(ctx context.Context, email, name string) error
}

var _ Store = (datastore.Store)(nil)

// Server wires the API routes.
type Server struct {
	views    *views.Service
	db       Store
	searcher Searcher
}

// New returns a Server. searcher may be nil, which disables /api/search.
func New(v *views.Service, db Store, searcher Searcher) *Server {
	return &Server{views: v, db: db, searcher: searcher}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/crates", s.listCrates)
		api.GET("/crates/:ns1/:ns2/:name/:version", s.cratePage)
		api.GET("/crates/:ns1/:ns2/:name/:version/dependencies", s.dependencies)
		api.GET("/crates/:ns1/:ns2/:name/:version/dependents", s.dependents)
		api.GET("/crates/:ns1/:ns2/:name/:version/dependencies/graphpage", s.dependencyTree)
		api.GET("/cvelist", s.cveList)
		api.POST("/search", s.search)
		api.POST("/upload", s.upload)
		api.POST("/submitUserinfo", s.submitUserInfo)
	}
	return r
}

// Serve runs the API until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	zlog.Info(ctx).Str("addr", addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) listCrates(c *gin.Context) {
	programs, err := s.db.AllPrograms(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	if programs == nil {
		programs = []*cratespro.Program{}
	}
	c.JSON(http.StatusOK, programs)
}

// cratePage serves both the front page and, when the version segment is the
// literal "versions", the version page.
func (s *Server) cratePage(c *gin.Context) {
	ctx := c.Request.Context()
	namespace := c.Param("ns1") + "/" + c.Param("ns2")
	name := c.Param("name")
	version := c.Param("version")

	if version == "versions" {
		page, err := s.views.VersionPage(ctx, namespace, name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, page)
		return
	}

	info, err := s.views.CrateInfo(ctx, namespace, name, version)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) dependencies(c *gin.Context) {
	list, err := s.views.DependencyList(c.Request.Context(),
		c.Param("ns1")+"/"+c.Param("ns2"), c.Param("name"), c.Param("version"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) dependents(c *gin.Context) {
	list, err := s.views.DependentList(c.Request.Context(),
		c.Param("ns1")+"/"+c.Param("ns2"), c.Param("name"), c.Param("version"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) dependencyTree(c *gin.Context) {
	tree, err := s.views.DependencyTree(c.Request.Context(),
		c.Param("ns1")+"/"+c.Param("ns2"), c.Param("name"), c.Param("version"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, tree)
}

type cveEntry struct {
	CveID        string `json:"cve_id"`
	URL          string `json:"url"`
	Description  string `json:"description"`
	CrateName    string `json:"crate_name"`
	PatchedRange string `json:"patched"`
}

func (s *Server) cveList(c *gin.Context) {
	advisories, err := s.db.AllAdvisories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	out := make([]cveEntry, 0, len(advisories))
	for _, a := range advisories {
		out = append(out, cveEntry{
			CveID:        a.ID,
			URL:          cratespro.CVERecordURL + a.ID,
			Description:  a.Description,
			CrateName:    a.CrateName,
			PatchedRange: a.Patched,
		})
	}
	c.JSON(http.StatusOK, gin.H{"cves": out})
}

type searchRequest struct {
	Query      string `json:"query"`
	Pagination struct {
		Page    int `json:"page"`
		PerPage int `json:"per_page"`
	} `json:"pagination"`
}

func (s *Server) search(c *gin.Context) {
	if s.searcher == nil {
		c.JSON(http.StatusOK, gin.H{"total": 0, "items": []cratespro.Program{}})
		return
	}
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if req.Pagination.Page < 1 {
		req.Pagination.Page = 1
	}
	if req.Pagination.PerPage < 1 {
		req.Pagination.PerPage = 20
	}
	items, total, err := s.searcher.Search(c.Request.Context(), req.Query, req.Pagination.Page, req.Pagination.PerPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search unavailable"})
		return
	}
	if items == nil {
		items = []cratespro.Program{}
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "items": items})
}

// upload records a user-submitted crate archive or an external URL for later
// ingest. The archive bytes are read and discarded; only the submission
// record (email, file name, upload time) is stored.
func (s *Server) upload(c *gin.Context) {
	ctx := c.Request.Context()
	email := c.PostForm("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	now := time.Now().UTC()

	if url := c.PostForm("url"); url != "" {
		if err := s.db.RecordUploadedURL(ctx, email, url, now); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "recorded"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either file or url is required"})
		return
	}
	// Drain the part so the client sees a clean close.
	if f, err := file.Open(); err == nil {
		_, _ = io.Copy(io.Discard, f)
		f.Close()
	}
	if err := s.db.RecordUploadedCrate(ctx, email, file.Filename, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

type userInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Server) submitUserInfo(c *gin.Context) {
	var info userInfo
	if err := c.ShouldBindJSON(&info); err != nil || info.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request"})
		return
	}
	if err := s.db.UpsertCrateUser(c.Request.Context(), info.Email, info.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
