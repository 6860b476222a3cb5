package agency

import (
	"strings"
	"testing"
)

func TestCreateDossierRendersMarkdown(t *testing.T) {
	s, _, sink := newTestStore(t)
	seedRoster(t, s, "Omar")

	d, err := s.CreateDossier(CreateDossierInput{
		Author:      "Omar",
		Title:       "Projet X",
		Description: "Status: **en cours**\n\n| step | done |\n| --- | --- |\n| intake | yes |",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(d.DescriptionHTML, "<strong>en cours</strong>") {
		t.Fatalf("expected bold markdown rendered, got %q", d.DescriptionHTML)
	}
	// GFM tables come from the extension, not core markdown.
	if !strings.Contains(d.DescriptionHTML, "<table>") {
		t.Fatalf("expected table rendered, got %q", d.DescriptionHTML)
	}
	if len(sink.byName(EventNewDossier)) != 1 {
		t.Fatalf("expected one new_dossier event")
	}
}

func TestCreateDossierValidation(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar")

	_, err := s.CreateDossier(CreateDossierInput{Author: "Ghost", Title: "x"})
	mustCode(t, err, CodeInvalidInput)
	_, err = s.CreateDossier(CreateDossierInput{Author: "Omar"})
	mustCode(t, err, CodeInvalidInput)
	_, err = s.CreateDossier(CreateDossierInput{
		Author: "Omar", Title: "x",
		Media: &Media{URL: "https://cdn/x.gif", Type: "gif"},
	})
	mustCode(t, err, CodeInvalidInput)

	// Description alone is enough.
	if _, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Description: "just text"}); err != nil {
		t.Fatalf("description-only create: %v", err)
	}
}

func TestUpdateDossierAuthorOnly(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf")

	d, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Title: "v1", Description: "plain"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	newDesc := "now **bold**"
	_, err = s.UpdateDossier(UpdateDossierInput{ID: d.ID, Editor: "Achraf", Description: &newDesc})
	mustCode(t, err, CodeForbidden)

	updated, err := s.UpdateDossier(UpdateDossierInput{ID: d.ID, Editor: "Omar", Description: &newDesc})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "v1" {
		t.Fatalf("partial update must keep untouched fields, got title=%q", updated.Title)
	}
	if !strings.Contains(updated.DescriptionHTML, "<strong>bold</strong>") {
		t.Fatalf("expected html re-rendered on update, got %q", updated.DescriptionHTML)
	}

	empty := ""
	_, err = s.UpdateDossier(UpdateDossierInput{ID: d.ID, Editor: "Omar", Title: &empty, Description: &empty})
	mustCode(t, err, CodeInvalidInput)
}

func TestDeleteDossierByAdminNotifiesAuthor(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf", "Moderator")

	d, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Title: "spam"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mustCode(t, s.DeleteDossier(d.ID, "Achraf"), CodeForbidden)

	if err := s.DeleteDossier(d.ID, "Moderator"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	_, err = s.GetDossier(d.ID)
	mustCode(t, err, CodeNotFound)

	views, err := s.ListNotifications("Omar")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, v := range views {
		if v.Type == NotifAdminAction {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected admin_action notification for the author, got %v", views)
	}
}

func TestDeleteDossierByAuthorStaysSilent(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar")

	d, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Title: "draft"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteDossier(d.ID, "Omar"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	views, _ := s.ListNotifications("Omar")
	for _, v := range views {
		if v.Type == NotifAdminAction {
			t.Fatalf("self-deletion must not notify")
		}
	}
}

func TestLikeDislikeToggleAndMutualExclusion(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf")

	d, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Title: "Projet X"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	d2, err := s.LikeDossier(d.ID, "Achraf")
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if len(d2.Likes) != 1 || len(d2.Dislikes) != 0 {
		t.Fatalf("after like: likes=%v dislikes=%v", d2.Likes, d2.Dislikes)
	}

	// Switching sides removes the like.
	d2, err = s.DislikeDossier(d.ID, "Achraf")
	if err != nil {
		t.Fatalf("dislike: %v", err)
	}
	if len(d2.Likes) != 0 || len(d2.Dislikes) != 1 {
		t.Fatalf("after switch: likes=%v dislikes=%v", d2.Likes, d2.Dislikes)
	}

	// Same action again toggles off.
	d2, err = s.DislikeDossier(d.ID, "Achraf")
	if err != nil {
		t.Fatalf("dislike toggle: %v", err)
	}
	if len(d2.Likes) != 0 || len(d2.Dislikes) != 0 {
		t.Fatalf("after toggle: likes=%v dislikes=%v", d2.Likes, d2.Dislikes)
	}
}

func TestLikeNotifiesAuthorOnAddOnly(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf")

	d, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Title: "Projet X"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	countLikes := func() int {
		t.Helper()
		views, err := s.ListNotifications("Omar")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		n := 0
		for _, v := range views {
			if v.Type == NotifLikeDossier {
				n++
			}
		}
		return n
	}

	if _, err := s.LikeDossier(d.ID, "Achraf"); err != nil {
		t.Fatalf("like: %v", err)
	}
	if got := countLikes(); got != 1 {
		t.Fatalf("expected 1 like notification, got %d", got)
	}
	if _, err := s.LikeDossier(d.ID, "Achraf"); err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if got := countLikes(); got != 1 {
		t.Fatalf("unlike must not notify, got %d", got)
	}
	// Self-likes stay silent too.
	if _, err := s.LikeDossier(d.ID, "Omar"); err != nil {
		t.Fatalf("self like: %v", err)
	}
	if got := countLikes(); got != 1 {
		t.Fatalf("self-like must not notify, got %d", got)
	}
}

func TestRepostRules(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf")

	d, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Title: "Projet X"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = s.RepostDossier(d.ID, "Omar")
	mustCode(t, err, CodeForbidden)

	if _, err := s.RepostDossier(d.ID, "Achraf"); err != nil {
		t.Fatalf("repost: %v", err)
	}
	_, err = s.RepostDossier(d.ID, "Achraf")
	mustCode(t, err, CodeConflict)
}

func TestCommentThreadLifecycle(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar", "Achraf", "Leila")

	d, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Title: "Projet X"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	c, err := s.AddComment(d.ID, "Achraf", "interesting")
	if err != nil {
		t.Fatalf("add comment: %v", err)
	}

	// Reply notifies the comment author, not the dossier author.
	if _, err := s.ReplyToComment(c.ID, "Leila", "agreed"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	achraf, _ := s.ListNotifications("Achraf")
	foundReply := false
	for _, v := range achraf {
		if v.Type == NotifReplyComment {
			foundReply = true
		}
	}
	if !foundReply {
		t.Fatalf("expected reply notification for comment author")
	}

	// Only the comment author can edit.
	_, err = s.EditComment(c.ID, "Omar", "rewritten")
	mustCode(t, err, CodeForbidden)
	edited, err := s.EditComment(c.ID, "Achraf", "still interesting")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.Text != "still interesting" {
		t.Fatalf("edit text=%q", edited.Text)
	}
	if len(edited.Replies) != 1 {
		t.Fatalf("edit must keep replies, got %d", len(edited.Replies))
	}

	// Comment like toggles.
	liked, err := s.LikeComment(c.ID, "Omar")
	if err != nil {
		t.Fatalf("like comment: %v", err)
	}
	if len(liked.Likes) != 1 {
		t.Fatalf("likes=%v", liked.Likes)
	}
	liked, err = s.LikeComment(c.ID, "Omar")
	if err != nil {
		t.Fatalf("unlike comment: %v", err)
	}
	if len(liked.Likes) != 0 {
		t.Fatalf("likes after toggle=%v", liked.Likes)
	}

	// Dossier author may remove any comment on their dossier; the comment
	// author gets notified.
	mustCode(t, s.DeleteComment(c.ID, "Leila"), CodeForbidden)
	if err := s.DeleteComment(c.ID, "Omar"); err != nil {
		t.Fatalf("delete comment: %v", err)
	}
	achraf, _ = s.ListNotifications("Achraf")
	foundDelete := false
	for _, v := range achraf {
		if v.Type == NotifDeleteComment {
			foundDelete = true
		}
	}
	if !foundDelete {
		t.Fatalf("expected delete notification for comment author")
	}

	got, err := s.GetDossier(d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Comments) != 0 {
		t.Fatalf("expected comment removed, got %v", got.Comments)
	}
}

func TestListDossiersNewestFirst(t *testing.T) {
	s, _, _ := newTestStore(t)
	seedRoster(t, s, "Omar")

	d1, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Title: "first"})
	if err != nil {
		t.Fatalf("create 1: %v", err)
	}
	d2, err := s.CreateDossier(CreateDossierInput{Author: "Omar", Title: "second"})
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}

	feed := s.ListDossiers()
	if len(feed) != 2 {
		t.Fatalf("expected 2 dossiers, got %d", len(feed))
	}
	if feed[0].ID != d2.ID || feed[1].ID != d1.ID {
		t.Fatalf("expected newest first, got %v then %v", feed[0].ID, feed[1].ID)
	}
}
