package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/mutation"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	postRepository repositories.PostRepository
	engine         *mutation.Engine
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(postRepo repositories.PostRepository, engine *mutation.Engine) *PostHandler {
	return &PostHandler{postRepository: postRepo, engine: engine}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.GET("/posts/:id", h.GetPost)
	g.PUT("/posts/:id", h.UpdatePost)
	g.DELETE("/posts/:id", h.DeletePost)
	g.POST("/posts/:id/like", h.ToggleLike)
	g.POST("/posts/:id/comments", h.AddComment)
}

// CreatePost creates a new post from a multipart form with optional "images"
func (h *PostHandler) CreatePost(c echo.Context) error {
	var req models.CreatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	uploads, done, err := formUploads(c, "images")
	if err != nil {
		return err
	}
	defer done()

	post, err := h.engine.CreatePost(c.Request().Context(), req.Content, uploads)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, post)
}

// GetPost retrieves a post by ID
func (h *PostHandler) GetPost(c echo.Context) error {
	post, err := h.postRepository.GetPostByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, post)
}

// UpdatePost replaces content and images. Without any "keep" field every
// existing image survives; otherwise only the listed filenames do.
func (h *PostHandler) UpdatePost(c echo.Context) error {
	var req models.UpdatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	post, err := h.postRepository.GetPostByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}

	keep := req.Keep
	params, _ := c.FormParams()
	if _, sent := params["keep"]; !sent && req.Keep == nil {
		keep = post.ImageURLs
	}

	uploads, done, err := formUploads(c, "images")
	if err != nil {
		return err
	}
	defer done()

	if err := h.engine.EditPost(c.Request().Context(), post, req.Content, keep, uploads); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeletePost deletes a post
func (h *PostHandler) DeletePost(c echo.Context) error {
	post, err := h.postRepository.GetPostByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if err := h.engine.DeletePost(c.Request().Context(), post); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ToggleLike likes or unlikes the post based on its stored like set
func (h *PostHandler) ToggleLike(c echo.Context) error {
	post, err := h.postRepository.GetPostByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	if err := h.engine.ToggleLike(c.Request().Context(), post); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddComment appends a comment to the post
func (h *PostHandler) AddComment(c echo.Context) error {
	var req models.CreateCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	post, err := h.postRepository.GetPostByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	comment, err := h.engine.AddComment(c.Request().Context(), post, req.Text)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, comment)
}
