// Package api serves a read-only view of the corpus over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
	"molt-highlights/internal/ranking"
	"molt-highlights/internal/search"
)

// Searcher answers full-text queries over the corpus.
type Searcher interface {
	Search(q string, limit int) ([]search.Result, error)
}

type Server struct {
	Store  ports.Store
	Scorer *ranking.Scorer
	Index  Searcher
	Clock  func() time.Time
	log    zerolog.Logger
}

func NewServer(store ports.Store, scorer *ranking.Scorer, index Searcher, log zerolog.Logger) *Server {
	if scorer == nil {
		scorer = ranking.NewScorer(nil)
	}
	return &Server{
		Store:  store,
		Scorer: scorer,
		Index:  index,
		Clock:  time.Now,
		log:    log.With().Str("component", "api").Logger(),
	}
}

type candidate struct {
	domain.Post
	Breakdown ranking.Breakdown `json:"breakdown"`
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests())

	router.GET("/health", func(c *gin.Context) {
		c.IndentedJSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": s.Clock(),
		})
	})

	// ?unpublished=true limits the list to posts still eligible for selection.
	router.GET("/posts", func(c *gin.Context) {
		corpus, err := s.Store.LoadCorpus(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		posts := corpus.Posts()
		if c.Query("unpublished") == "true" {
			posts = corpus.Unpublished()
		}
		c.IndentedJSON(http.StatusOK, gin.H{
			"count": len(posts),
			"posts": posts,
		})
	})

	router.GET("/candidates", func(c *gin.Context) {
		ctx := c.Request.Context()
		corpus, err := s.Store.LoadCorpus(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		history, err := s.Store.LoadHistory(ctx)
		if err != nil {
			s.fail(c, err)
			return
		}
		var pool []domain.Post
		for _, p := range corpus.Posts() {
			if !history.IsPublished(p.ID) {
				pool = append(pool, p)
			}
		}
		now := s.Clock()
		ranked := s.Scorer.Select(pool, intQuery(c, "limit", ranking.DefaultCandidates), now)
		out := make([]candidate, 0, len(ranked))
		for _, p := range ranked {
			out = append(out, candidate{Post: p, Breakdown: s.Scorer.Explain(p, now)})
		}
		c.IndentedJSON(http.StatusOK, gin.H{
			"count":      len(out),
			"candidates": out,
		})
	})

	router.GET("/history", func(c *gin.Context) {
		history, err := s.Store.LoadHistory(c.Request.Context())
		if err != nil {
			s.fail(c, err)
			return
		}
		c.IndentedJSON(http.StatusOK, gin.H{
			"count":        history.Len(),
			"last_updated": history.LastUpdated,
			"entries":      history.Entries(),
		})
	})

	router.GET("/search", func(c *gin.Context) {
		if s.Index == nil {
			c.IndentedJSON(http.StatusNotImplemented, gin.H{"error": "search index not configured"})
			return
		}
		q := c.Query("q")
		if q == "" {
			c.IndentedJSON(http.StatusBadRequest, gin.H{"error": "missing q"})
			return
		}
		hits, err := s.Index.Search(q, intQuery(c, "limit", 10))
		if err != nil {
			s.fail(c, err)
			return
		}
		c.IndentedJSON(http.StatusOK, gin.H{
			"count":   len(hits),
			"results": hits,
		})
	})

	return router
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.IndentedJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
