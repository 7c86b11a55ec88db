package server

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"net/http"

	"github.com/gin-gonic/gin"
	meshwarp "github.com/gino07172002/testMeshWarp"
	"go.uber.org/zap"
)

// PointerRequest is a pointer position inside the client's image view.
type PointerRequest struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	SCW float64 `json:"scw"`
	SCH float64 `json:"sch"`
}

// Response is the body of every API reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// ID, X and Y are set on a lookup hit only; a node at the origin
	// still reports them.
	Found *bool            `json:"found,omitempty"`
	ID    *meshwarp.NodeID `json:"id,omitempty"`
	X     *float64         `json:"x,omitempty"`
	Y     *float64         `json:"y,omitempty"`

	Pixels     int `json:"pixels,omitempty"`
	Degenerate int `json:"degenerate,omitempty"`
}

type toolRequest struct {
	Tool string `json:"tool"`
}

func ok(message string) Response {
	return Response{Success: true, Message: message}
}

func fail(c *gin.Context, code int, err error) {
	_ = c.Error(err)
	c.JSON(code, Response{Success: false, Message: err.Error()})
}

func hitResponse(hit meshwarp.Hit, found bool) Response {
	r := ok("good")
	r.Found = &found
	if found {
		id, x, y := hit.ID, hit.Pos.X, hit.Pos.Y
		r.ID, r.X, r.Y = &id, &x, &y
	}
	return r
}

func statsResponse(st meshwarp.Stats) Response {
	r := ok("good")
	r.Pixels, r.Degenerate = st.Pixels, st.Degenerate
	return r
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, meshwarp.ErrNoSelection):
		return http.StatusConflict
	case errors.Is(err, meshwarp.ErrUnknownTool), errors.Is(err, meshwarp.ErrSnapshotMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writePNG(c *gin.Context, img image.Image) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) sourceImage(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writePNG(c, s.session.Source())
}

func (s *Server) warpedImage(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.session.Output()
	if c.Query("grid") != "1" {
		writePNG(c, out)
		return
	}
	o := s.draw
	o.Selected = s.session.Selected()
	writePNG(c, meshwarp.Render(out, s.session.Mesh(), o))
}

func (s *Server) meshSVG(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.session.Source().Bounds()
	o := meshwarp.DefaultSVGOptions()
	o.Original = c.Query("original") == "1"

	var buf bytes.Buffer
	meshwarp.WriteSVG(&buf, s.session.Mesh(), b.Dx(), b.Dy(), o)
	c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
}

func (s *Server) bindPointer(c *gin.Context) (PointerRequest, bool) {
	var req PointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return req, false
	}
	return req, true
}

func (s *Server) points(c *gin.Context) {
	req, valid := s.bindPointer(c)
	if !valid {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.session.ImagePoint(req.X, req.Y, req.SCW, req.SCH)
	hit, found := s.session.Pick(p)
	c.JSON(http.StatusOK, hitResponse(hit, found))
}

func (s *Server) clickStart(c *gin.Context) {
	req, valid := s.bindPointer(c)
	if !valid {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.JSON(http.StatusOK, s.press(req))
}

func (s *Server) drag(c *gin.Context) {
	req, valid := s.bindPointer(c)
	if !valid {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, err := s.move(req, false)
	if err != nil {
		fail(c, errorCode(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) dragDone(c *gin.Context) {
	req, valid := s.bindPointer(c)
	if !valid {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, err := s.move(req, true)
	if err != nil {
		fail(c, errorCode(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// press and move are shared by the HTTP routes and the websocket stream.
// Callers hold s.mu.
func (s *Server) press(req PointerRequest) Response {
	p := s.session.ImagePoint(req.X, req.Y, req.SCW, req.SCH)
	hit, found := s.session.Press(p)
	return hitResponse(hit, found)
}

func (s *Server) move(req PointerRequest, done bool) (Response, error) {
	p := s.session.ImagePoint(req.X, req.Y, req.SCW, req.SCH)
	var (
		st  meshwarp.Stats
		err error
	)
	if done {
		st, err = s.session.Release(p)
	} else {
		st, err = s.session.Drag(p)
	}
	if err != nil {
		return Response{}, err
	}
	return statsResponse(st), nil
}

func (s *Server) setTool(c *gin.Context) {
	var req toolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.SetTool(req.Tool); err != nil {
		fail(c, errorCode(err), err)
		return
	}
	s.log.Info("tool changed", zap.String("tool", req.Tool))
	c.JSON(http.StatusOK, ok(req.Tool))
}

func (s *Server) reset(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Reset()
	c.JSON(http.StatusOK, ok("reset"))
}

func (s *Server) getLayer(c *gin.Context) {
	s.mu.Lock()
	snap := s.session.Snapshot()
	s.mu.Unlock()

	var buf bytes.Buffer
	if err := snap.Encode(&buf); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", buf.Bytes())
}

func (s *Server) applyLayer(c *gin.Context) {
	snap, err := meshwarp.DecodeSnapshot(c.Request.Body)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.session.ApplySnapshot(snap)
	if err != nil {
		fail(c, errorCode(err), err)
		return
	}
	c.JSON(http.StatusOK, statsResponse(st))
}
