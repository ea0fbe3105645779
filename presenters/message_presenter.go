// Package presenters shapes persisted records into the external API
// responses. Everything here is a pure function of its inputs.
package presenters

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ysuzuki8/market_dm/models"
	"github.com/ysuzuki8/market_dm/services"
)

// URLResolver maps a stored attachment path to a retrievable URL.
type URLResolver func(path string) string

type UserRef struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

type AttachmentView struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

type MessageView struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Body           *string          `json:"body"`
	HasAttachments bool             `json:"hasAttachments"`
	Attachments    []AttachmentView `json:"attachments"`
	Sender         *UserRef         `json:"sender"`
	IsDeleted      bool             `json:"isDeleted"`
	DeletedAt      *string          `json:"deletedAt"`
	EditedAt       *string          `json:"editedAt"`
	ReadAt         *string          `json:"readAt"`
	CreatedAt      string           `json:"createdAt"`
}

type MessagePageView struct {
	Items       []MessageView `json:"items"`
	Total       int64         `json:"total"`
	CurrentPage int           `json:"currentPage"`
	LastPage    int           `json:"lastPage"`
	PerPage     int           `json:"perPage"`
	NextPageURL *string       `json:"nextPageUrl"`
	PrevPageURL *string       `json:"prevPageUrl"`
}

// PresentMessage shapes a message. A deleted message renders as a
// tombstone: body and attachments suppressed, metadata intact.
func PresentMessage(m *models.Message, urlFor URLResolver) MessageView {
	view := MessageView{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Body:           m.Body,
		HasAttachments: m.HasAttachments,
		Attachments:    []AttachmentView{},
		Sender:         presentUser(&m.Sender),
		IsDeleted:      m.IsDeleted,
		DeletedAt:      formatTime(m.DeletedAt),
		EditedAt:       formatTime(m.EditedAt),
		ReadAt:         formatTime(m.ReadAt),
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}

	if m.IsDeleted {
		view.Body = nil
		view.HasAttachments = false
		return view
	}

	for _, a := range m.Attachments {
		view.Attachments = append(view.Attachments, AttachmentView{
			ID:   a.ID.String(),
			URL:  urlFor(a.Path),
			Mime: a.Mime,
			Size: a.Size,
		})
	}
	return view
}

// PresentMessagePage shapes a page of messages. basePath is the request
// path the page was served from; it seeds the next/prev page links.
func PresentMessagePage(page *services.MessagePage, basePath string, urlFor URLResolver) MessagePageView {
	items := make([]MessageView, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, PresentMessage(&page.Items[i], urlFor))
	}
	view := MessagePageView{
		Items:       items,
		Total:       page.Total,
		CurrentPage: page.CurrentPage,
		LastPage:    page.LastPage,
		PerPage:     page.PerPage,
	}
	if page.CurrentPage < page.LastPage {
		view.NextPageURL = pageURL(basePath, page.CurrentPage+1, page.PerPage)
	}
	if page.CurrentPage > 1 {
		view.PrevPageURL = pageURL(basePath, page.CurrentPage-1, page.PerPage)
	}
	return view
}

func pageURL(basePath string, page, perPage int) *string {
	u := fmt.Sprintf("%s?page=%d&perPage=%d", basePath, page, perPage)
	return &u
}

func presentUser(u *models.User) *UserRef {
	if u == nil || u.ID == uuid.Nil {
		return nil
	}
	return &UserRef{
		ID:          u.ID.String(),
		Name:        u.Name,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
