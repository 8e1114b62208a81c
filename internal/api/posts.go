package api

import (
	"net/http"

	"promotion/internal/economy"
	"promotion/internal/social"

	"github.com/go-chi/chi/v5"
)

type impactRequest struct {
	Content     string `json:"content"`
	ImageURL    string `json:"image_url"`
	Sector      string `json:"sector"`
	HasEvidence bool   `json:"has_evidence"`
}

type postView struct {
	social.Post
	ImpactRank   economy.ImpactRank `json:"impact_rank"`
	CommentCount int                `json:"comment_count"`
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	var in impactRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount := economy.CalculateMarketImpact(in.Content, in.Sector, in.HasEvidence || in.ImageURL != "")
	writeJSON(w, http.StatusOK, map[string]any{
		"amount": amount,
		"rank":   economy.RankImpact(amount),
	})
}

func (s *Server) handlePostsList(w http.ResponseWriter, r *http.Request) {
	posts, err := s.social.ListPosts(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.writeRemoteError(w, "list_posts", err)
		return
	}
	out := make([]postView, 0, len(posts))
	for _, p := range posts {
		out = append(out, postView{
			Post:         p,
			ImpactRank:   economy.RankImpact(p.ImpactAmount),
			CommentCount: s.book.CommentCount(r.Context(), p.ID),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": out})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in impactRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	impact := economy.CalculateMarketImpact(in.Content, in.Sector, in.HasEvidence || in.ImageURL != "")
	post, err := s.social.CreatePost(r.Context(), social.NewPost{
		UserID:       user.UserID,
		Content:      in.Content,
		ImageURL:     in.ImageURL,
		ImpactAmount: impact,
	})
	if err != nil {
		s.writeRemoteError(w, "create_post", err)
		return
	}
	writeJSON(w, http.StatusCreated, postView{Post: post, ImpactRank: economy.RankImpact(impact)})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	ctx := r.Context()
	post, err := s.social.GetPost(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.writeRemoteError(w, "get_post", err)
		return
	}
	count, err := s.social.RespectCount(ctx, post.ID)
	if err != nil {
		s.writeRemoteError(w, "respect_count", err)
		return
	}
	respected, err := s.social.HasRespectedPost(ctx, user.UserID, post.ID)
	if err != nil {
		s.writeRemoteError(w, "has_respected", err)
		return
	}
	comments := s.book.Comments(ctx, post.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"post":          postView{Post: post, ImpactRank: economy.RankImpact(post.ImpactAmount), CommentCount: len(comments)},
		"respect_count": count,
		"has_respected": respected,
		"comments":      comments,
	})
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"comments": s.book.Comments(r.Context(), chi.URLParam(r, "id"))})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	postID := chi.URLParam(r, "id")
	post, err := s.social.GetPost(r.Context(), postID)
	if err != nil {
		s.writeRemoteError(w, "get_post", err)
		return
	}
	c, err := s.book.AddComment(r.Context(), postID, user.UserID, user.UserName, in.Content)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.ledger.NotifyComment(r.Context(), post.UserID, user.UserID, user.UserName, c.Content)
	writeJSON(w, http.StatusCreated, c)
}
