package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestParsePagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/list?page=0&page_size=500", nil)

	page, pageSize := ParsePagination(c)
	if page != 1 || pageSize != 100 {
		t.Fatalf("want 1/100 got %d/%d", page, pageSize)
	}
}

func TestBuildPagination(t *testing.T) {
	p := BuildPagination(2, 20, 41)
	if p.TotalPage != 3 {
		t.Fatalf("total page want 3 got %d", p.TotalPage)
	}
	if empty := BuildPagination(1, 20, 0); empty.TotalPage != 0 {
		t.Fatalf("empty total page want 0 got %d", empty.TotalPage)
	}
}

func TestParseUintParam(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	if id, ok := ParseUintParam(c, "id"); !ok || id != 42 {
		t.Fatalf("want 42 got %d ok=%v", id, ok)
	}

	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	c2.Params = gin.Params{{Key: "id", Value: "0"}}
	if _, ok := ParseUintParam(c2, "id"); ok {
		t.Fatalf("zero id should be rejected")
	}
}
