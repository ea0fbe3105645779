package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ysuzuki8/market_dm/models"
	"gorm.io/gorm"
)

func TestCreateOrGetDirectDeduplicates(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	first, created, err := svc.CreateOrGetDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the conversation")
	}
	if first.Conversation.Type != models.ConversationTypeDirect {
		t.Fatalf("type = %q, want direct", first.Conversation.Type)
	}
	if len(first.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(first.Participants))
	}
	for _, p := range first.Participants {
		switch p.UserID {
		case alice.ID:
			if p.Role != models.ParticipantRoleOwner {
				t.Errorf("creator role = %q, want owner", p.Role)
			}
		case bob.ID:
			if p.Role != models.ParticipantRoleMember {
				t.Errorf("invitee role = %q, want member", p.Role)
			}
		default:
			t.Errorf("unexpected participant %s", p.UserID)
		}
	}

	// Reversed order must resolve to the same canonical conversation.
	second, created, err := svc.CreateOrGetDirect(bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("expected dedup hit, got a new conversation")
	}
	if second.Conversation.ID != first.Conversation.ID {
		t.Fatalf("got %s, want %s", second.Conversation.ID, first.Conversation.ID)
	}
}

// A concurrent request can create the pair between the initial lookup and
// the insert; the loser trips the direct_key unique index and must resolve
// to the winner's row. The competitor is injected right after the lookup
// query through a registered callback, so the lost race is deterministic.
func TestCreateOrGetDirectLosesCreationRace(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	var winner models.Conversation
	injected := false
	err := db.Callback().Query().After("gorm:query").Register("inject_pair_winner", func(tx *gorm.DB) {
		if injected || tx.Statement == nil ||
			!strings.Contains(tx.Statement.SQL.String(), "conversation_participants cp1") {
			return
		}
		injected = true

		key := directKeyFor(alice.ID, bob.ID)
		winner = models.Conversation{
			Type:      models.ConversationTypeDirect,
			CreatedBy: bob.ID,
			DirectKey: &key,
		}
		session := db.Session(&gorm.Session{NewDB: true})
		if err := session.Create(&winner).Error; err != nil {
			t.Errorf("insert winning conversation: %v", err)
			return
		}
		now := time.Now()
		participants := []models.ConversationParticipant{
			{ConversationID: winner.ID, UserID: bob.ID, Role: models.ParticipantRoleOwner, JoinedAt: now},
			{ConversationID: winner.ID, UserID: alice.ID, Role: models.ParticipantRoleMember, JoinedAt: now},
		}
		if err := session.Create(&participants).Error; err != nil {
			t.Errorf("insert winning participants: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	view, created, err := svc.CreateOrGetDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("losing create: %v", err)
	}
	if !injected {
		t.Fatal("competitor was never injected, race not exercised")
	}
	if created {
		t.Fatal("loser must report the conversation as pre-existing")
	}
	if view.Conversation.ID != winner.ID {
		t.Fatalf("got %s, want winner %s", view.Conversation.ID, winner.ID)
	}
	if len(view.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(view.Participants))
	}

	var total int64
	if err := db.Model(&models.Conversation{}).
		Where("type = ?", models.ConversationTypeDirect).Count(&total).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 1 {
		t.Fatalf("direct conversations = %d, want exactly 1", total)
	}
}

func TestCreateOrGetDirectIgnoresGroupWithSamePair(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	group, err := svc.CreateGroup(alice.ID, "Plans", []uuid.UUID{bob.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	direct, created, err := svc.CreateOrGetDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	if !created {
		t.Fatal("expected a new direct conversation despite the group with the same pair")
	}
	if direct.Conversation.ID == group.Conversation.ID {
		t.Fatal("direct lookup matched a group conversation")
	}
}

func TestCreateOrGetDirectValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	alice := createUser(t, db, "alice")

	if _, _, err := svc.CreateOrGetDirect(alice.ID, alice.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("self conversation: got %v, want ErrValidation", err)
	}
	if _, _, err := svc.CreateOrGetDirect(alice.ID, uuid.New()); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown recipient: got %v, want ErrValidation", err)
	}
}

func TestCreateGroup(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	if _, err := svc.CreateGroup(alice.ID, "   ", []uuid.UUID{bob.ID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank title: got %v, want ErrValidation", err)
	}
	if _, err := svc.CreateGroup(alice.ID, "Team", []uuid.UUID{alice.ID}); !errors.Is(err, ErrValidation) {
		t.Fatalf("creator-only members: got %v, want ErrValidation", err)
	}
	if _, err := svc.CreateGroup(alice.ID, "Team", []uuid.UUID{bob.ID, uuid.New()}); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown member: got %v, want ErrValidation", err)
	}

	// Duplicates and the creator are dropped from the invitee list.
	view, err := svc.CreateGroup(alice.ID, "Team", []uuid.UUID{bob.ID, bob.ID, alice.ID, carol.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if view.Conversation.Type != models.ConversationTypeGroup {
		t.Fatalf("type = %q, want group", view.Conversation.Type)
	}
	if view.Conversation.Title == nil || *view.Conversation.Title != "Team" {
		t.Fatalf("title = %v, want Team", view.Conversation.Title)
	}
	if len(view.Participants) != 3 {
		t.Fatalf("participants = %d, want 3", len(view.Participants))
	}
	roles := map[uuid.UUID]string{}
	for _, p := range view.Participants {
		roles[p.UserID] = p.Role
	}
	if roles[alice.ID] != models.ParticipantRoleOwner {
		t.Errorf("creator role = %q, want owner", roles[alice.ID])
	}
	if roles[bob.ID] != models.ParticipantRoleMember || roles[carol.ID] != models.ParticipantRoleMember {
		t.Errorf("member roles = %v, want member for bob and carol", roles)
	}
}

func TestRequireParticipant(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	view, _, err := svc.CreateOrGetDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}

	if err := svc.RequireParticipant(view.Conversation.ID, alice.ID); err != nil {
		t.Fatalf("participant rejected: %v", err)
	}
	if err := svc.RequireParticipant(view.Conversation.ID, carol.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-participant: got %v, want ErrForbidden", err)
	}
}

func TestListForUserOrderingAndEnrichment(t *testing.T) {
	db := newTestDB(t)
	svc := NewConversationService(db)
	store, err := NewLocalStore(t.TempDir(), "/files")
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	messages := NewMessageService(db, store)

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	withBob, _, err := svc.CreateOrGetDirect(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	withCarol, _, err := svc.CreateOrGetDirect(alice.ID, carol.ID)
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}

	ctx := context.Background()
	if _, err := messages.Send(ctx, withCarol.Conversation.ID, carol.ID, "from carol", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	sent, err := messages.Send(ctx, withBob.Conversation.ID, bob.ID, "from bob", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	// Force distinct activity timestamps so the ordering is unambiguous.
	if err := db.Model(&models.Conversation{}).
		Where("id = ?", withBob.Conversation.ID).
		Update("updated_at", time.Now().Add(time.Minute)).Error; err != nil {
		t.Fatalf("bump updated_at: %v", err)
	}

	views, err := svc.ListForUser(alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("conversations = %d, want 2", len(views))
	}
	if views[0].Conversation.ID != withBob.Conversation.ID {
		t.Fatal("expected the conversation with the newest activity first")
	}
	if views[0].LastMessage == nil || views[0].LastMessage.ID != sent.ID {
		t.Fatal("latest message missing from enrichment")
	}
	if views[0].LastMessage.Sender.Name != "bob" {
		t.Fatalf("latest message sender = %q, want bob", views[0].LastMessage.Sender.Name)
	}
	if views[0].UnreadCount != 1 || views[1].UnreadCount != 1 {
		t.Fatalf("unread counts = %d/%d, want 1/1", views[0].UnreadCount, views[1].UnreadCount)
	}

	// A deleted latest message still surfaces, as a tombstone.
	if _, err := messages.SoftDelete(withBob.Conversation.ID, sent.ID, bob.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	views, err = svc.ListForUser(alice.ID)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	for _, view := range views {
		if view.Conversation.ID != withBob.Conversation.ID {
			continue
		}
		if view.LastMessage == nil || !view.LastMessage.IsDeleted {
			t.Fatal("deleted latest message should still enrich the listing")
		}
	}
}
