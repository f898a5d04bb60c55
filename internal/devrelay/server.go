package devrelay

import (
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cipherline/internal/domain"
)

const (
	ctxUserKey    = "devrelay.user"
	maxUploadSize = 32 << 20
)

// Server exposes State over HTTP and WebSocket.
type Server struct {
	state    *State
	log      *zap.Logger
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

// NewServer builds the route table.
func NewServer(state *State, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		state: state,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.accessLog())

	s.engine.GET("/ws", s.handleSocket)

	dev := s.engine.Group("/dev")
	dev.POST("/users", s.handleAddUser)
	dev.POST("/chats", s.handleCreateChat)
	dev.PUT("/chats/:chat_id/members", s.handleSetMembers)

	api := s.engine.Group("/", s.auth)
	api.POST("/crypto/public-key", s.handlePublishKey)
	api.GET("/crypto/public-key/:user_id", s.handleFetchKey)
	api.POST("/crypto/group-key/wrap", s.handlePutWrap)
	api.GET("/crypto/group-key/wrap/:chat_id", s.handleFetchWrap)
	api.GET("/chats/", s.handleChats)
	api.GET("/chats/unread-counts", s.handleUnread)
	api.GET("/chats/:chat_id/messages", s.handleMessages)
	api.POST("/chats/:chat_id/read-state", s.handleReadState)
	api.POST("/files/upload", s.handleUpload)
	api.GET("/files/:file_id", s.handleDownload)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("remote", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("dur", time.Since(start)),
		)
	}
}

func (s *Server) auth(c *gin.Context) {
	const prefix = "Bearer "
	h := c.GetHeader("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing bearer token"})
		return
	}
	user, ok := s.state.UserForToken(h[len(prefix):])
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid token"})
		return
	}
	c.Set(ctxUserKey, user)
	c.Next()
}

func currentUser(c *gin.Context) domain.UserID {
	return c.MustGet(ctxUserKey).(domain.UserID)
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errNotMember):
		status = http.StatusForbidden
	case errors.Is(err, errBadMessage):
		status = http.StatusBadRequest
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, err)
		return 0, false
	}
	return id, true
}

func (s *Server) handleSocket(c *gin.Context) {
	user, ok := s.state.UserForToken(c.Query("token"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid token"})
		return
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	s.state.Hub().Serve(user, conn)
}

type addUserRequest struct {
	ID       domain.UserID `json:"id" binding:"required"`
	Username string        `json:"username"`
}

func (s *Server) handleAddUser(c *gin.Context) {
	var req addUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tok := s.state.AddUser(req.ID, req.Username)
	c.JSON(http.StatusOK, gin.H{"id": req.ID, "token": tok})
}

type chatRequest struct {
	Type      domain.ChatType `json:"chat_type"`
	Name      string          `json:"name"`
	Admin     domain.UserID   `json:"admin_user_id"`
	MemberIDs []domain.UserID `json:"member_ids"`
}

func (s *Server) handleCreateChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Type == "" {
		req.Type = domain.ChatPrivate
	}
	c.JSON(http.StatusOK, s.state.CreateChat(req.Type, req.Name, req.Admin, req.MemberIDs...))
}

func (s *Server) handleSetMembers(c *gin.Context) {
	id, ok := paramID(c, "chat_id")
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	chat, err := s.state.SetMembers(domain.ChatID(id), req.MemberIDs...)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

type publishKeyRequest struct {
	PublicKeyJWK string `json:"public_key_jwk" binding:"required"`
	Algorithm    string `json:"algorithm"`
}

func (s *Server) handlePublishKey(c *gin.Context) {
	var req publishKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user := currentUser(c)
	s.state.publishKey(user, req.PublicKeyJWK, req.Algorithm)
	c.JSON(http.StatusOK, domain.PublicKeyRecord{UserID: user, PublicKeyJWK: req.PublicKeyJWK, Algorithm: req.Algorithm})
}

func (s *Server) handleFetchKey(c *gin.Context) {
	id, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	rec, err := s.state.fetchKey(domain.UserID(id))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handlePutWrap(c *gin.Context) {
	var w domain.WrappedGroupKey
	if err := c.ShouldBindJSON(&w); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.state.putWrap(currentUser(c), w); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleFetchWrap(c *gin.Context) {
	id, ok := paramID(c, "chat_id")
	if !ok {
		return
	}
	w, err := s.state.fetchWrap(currentUser(c), domain.ChatID(id))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (s *Server) handleChats(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.chatsFor(currentUser(c)))
}

type unreadEntry struct {
	ChatID      domain.ChatID `json:"chat_id"`
	UnreadCount int           `json:"unread_count"`
}

func (s *Server) handleUnread(c *gin.Context) {
	counts := s.state.unreadFor(currentUser(c))
	out := make([]unreadEntry, 0, len(counts))
	for id, n := range counts {
		out = append(out, unreadEntry{ChatID: id, UnreadCount: n})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleMessages(c *gin.Context) {
	id, ok := paramID(c, "chat_id")
	if !ok {
		return
	}
	msgs, err := s.state.history(currentUser(c), domain.ChatID(id))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleReadState(c *gin.Context) {
	id, ok := paramID(c, "chat_id")
	if !ok {
		return
	}
	last, err := strconv.ParseInt(c.Query("last_read_message_id"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.state.markRead(currentUser(c), domain.ChatID(id), last); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleUpload(c *gin.Context) {
	nonce, err := base64.StdEncoding.DecodeString(c.GetHeader("x-nonce"))
	if err != nil || len(nonce) == 0 {
		badRequest(c, errors.New("x-nonce header must be base64"))
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	if fh.Size > maxUploadSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		fail(c, err)
		return
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	meta := s.state.putBlob(data, fh.Filename, mimeType, nonce, domain.Algorithm(c.GetHeader("x-algo")))
	c.JSON(http.StatusOK, meta)
}

func (s *Server) handleDownload(c *gin.Context) {
	id, ok := paramID(c, "file_id")
	if !ok {
		return
	}
	meta, data, err := s.state.getBlob(domain.AttachmentID(id))
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("x-nonce", base64.StdEncoding.EncodeToString(meta.Nonce))
	c.Header("x-algo", string(meta.Algo))
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": meta.Filename}))
	c.Data(http.StatusOK, meta.MimeType, data)
}
