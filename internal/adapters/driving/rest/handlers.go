package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

// defaultNBest is used when n_best is absent.
const defaultNBest = 5

// maxNBest bounds n_best.
const maxNBest = 1000

type errorBody struct {
	Error string `json:"error"`
}

type handlers struct {
	ports Ports
}

func (h *handlers) home(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte("<h1>Welcome to the translation memory search engine</h1>"))
}

func (h *handlers) health(c *gin.Context) {
	if h.ports.Status == nil {
		c.JSON(http.StatusOK, gin.H{"state": "unknown"})
		return
	}
	status := h.ports.Status.Status()
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// queryParams holds the parameters shared by both search endpoints.
type queryParams struct {
	text  string
	nBest int
}

func parseQuery(c *gin.Context) (queryParams, error) {
	text, ok := c.GetQuery("src_text")
	if !ok || strings.TrimSpace(text) == "" {
		return queryParams{}, errors.New("no source text provided")
	}

	nBest := defaultNBest
	if raw, ok := c.GetQuery("n_best"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxNBest {
			return queryParams{}, errors.New("n_best must be an integer between 0 and 1000")
		}
		nBest = n
	}
	return queryParams{text: text, nBest: nBest}, nil
}

// flag reads an optional boolean query parameter. Any non-empty value that
// is not a recognised false literal enables it.
func flag(c *gin.Context, name string) bool {
	raw := c.Query(name)
	if raw == "" {
		return false
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return true
}

func (h *handlers) search(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	records, err := h.ports.Search.Search(c.Request.Context(), q.text, q.nBest)
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *handlers) advancedSearch(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	fields := domain.FieldSet{
		Type:    flag(c, "type"),
		Domain:  flag(c, "domain"),
		Quality: flag(c, "quality"),
		YCC:     flag(c, "ycc"),
	}

	rows, err := h.ports.Search.AdvancedSearch(c.Request.Context(), q.text, q.nBest, fields)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h *handlers) segment(c *gin.Context) {
	if h.ports.Segment == nil {
		c.JSON(http.StatusNotFound, errorBody{Error: "segment lookup not available"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: "id must be an integer"})
		return
	}

	rec, err := h.ports.Segment.Segment(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoResolvableTokens):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotReady), errors.Is(err, domain.ErrMetadataUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	c.JSON(code, errorBody{Error: msg})
}
