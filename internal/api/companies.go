package api

import (
	"net/http"
	"strings"

	"promotion/internal/economy"

	"github.com/go-chi/chi/v5"
)

type companyView struct {
	economy.Company
	MarketCap          int64                    `json:"market_cap"`
	StageName          string                   `json:"stage_name"`
	MaxMembers         int                      `json:"max_members,omitempty"`
	OrganizationFactor float64                  `json:"organization_factor"`
	Maintenance        economy.StageMaintenance `json:"maintenance"`
}

func newCompanyView(c economy.Company) companyView {
	v := companyView{
		Company:            c,
		MarketCap:          economy.CalculateCompanyMarketCap(c),
		StageName:          c.Stage.Name(),
		OrganizationFactor: economy.CalculateOrganizationFactor(c),
		Maintenance:        economy.CheckStageMaintenance(c),
	}
	if limit := c.Stage.MaxMembers(); limit != economy.UnlimitedMembers {
		v.MaxMembers = limit
	}
	return v
}

func (s *Server) handleCompanyRanking(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"companies": s.ledger.CompanyRanking(r.Context())})
}

func (s *Server) handleCompanyRequirements(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	data := s.ledger.LoadMarketData(r.Context(), user.UserID)
	writeJSON(w, http.StatusOK, economy.CheckCompanyCreationRequirements(data.MarketCap, data.Rank()))
}

func (s *Server) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, ok := s.ledger.UserCompanyID(r.Context(), user.UserID); ok {
		writeError(w, http.StatusConflict, economy.ErrAlreadyMember.Error())
		return
	}
	data := s.ledger.LoadMarketData(r.Context(), user.UserID)
	c, err := s.ledger.CreateCompany(r.Context(), economy.CreateCompanyInput{
		Name:           in.Name,
		Description:    in.Description,
		OwnerID:        user.UserID,
		OwnerName:      user.UserName,
		OwnerMarketCap: data.MarketCap,
		OwnerRank:      data.Rank(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCompanyView(c))
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	c, ok := s.ledger.GetCompany(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeDomainError(w, economy.ErrCompanyNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newCompanyView(c))
}

func (s *Server) handleJoinCompany(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	companyID := chi.URLParam(r, "id")
	data := s.ledger.LoadMarketData(r.Context(), user.UserID)
	if err := s.ledger.JoinCompany(r.Context(), companyID, user.UserID, user.UserName, data.MarketCap); err != nil {
		writeDomainError(w, err)
		return
	}
	s.ledger.SyncMembership(r.Context(), user.UserID)
	c, _ := s.ledger.GetCompany(r.Context(), companyID)
	writeJSON(w, http.StatusOK, newCompanyView(c))
}

func (s *Server) handleLeaveCompany(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err := s.ledger.LeaveCompany(r.Context(), user.UserID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleContribution(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = user.UserID
	}
	got, err := s.ledger.Contribution(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}
