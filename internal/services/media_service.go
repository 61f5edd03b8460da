package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/himpower2025/eps-topik-mate/internal/genai"
	"github.com/himpower2025/eps-topik-mate/internal/models"
	"github.com/himpower2025/eps-topik-mate/internal/repositories"
	"github.com/himpower2025/eps-topik-mate/internal/utils"
)

// mediaService generates question media off the request path. Each
// session holds one media slot: preparing a new question replaces the
// previous bundle, so at most one audio clip is retained per session.
type mediaService struct {
	repo   repositories.Repository
	client genai.Client
	logger utils.Logger

	mu       sync.Mutex
	sessions map[string]*mediaSlot
}

// mediaSlot is the per-session media state for the question currently
// displayed. Deliveries tagged with an older epoch are discarded.
type mediaSlot struct {
	mu     sync.Mutex
	epoch  int64
	bundle *QuestionMedia
}

func NewMediaService(repo repositories.Repository, client genai.Client, logger utils.Logger) MediaService {
	return &mediaService{
		repo:     repo,
		client:   client,
		logger:   logger,
		sessions: make(map[string]*mediaSlot),
	}
}

// PrepareQuestion starts generation for the question at index and
// returns immediately. Generation outlives the triggering request.
func (s *mediaService) PrepareQuestion(ctx context.Context, session *models.ExamSession, index int) error {
	questions, err := session.QuestionList()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(questions) {
		return ErrInvalidQuestionIndex
	}
	question := questions[index]
	epoch := session.MediaEpoch

	slot := s.slotFor(session.ID)
	slot.mu.Lock()
	slot.epoch = epoch
	slot.bundle = &QuestionMedia{QuestionID: question.ID, Epoch: epoch}
	slot.mu.Unlock()

	bg := context.WithoutCancel(ctx)

	go s.generateImages(bg, session.ID, slot, question, epoch)
	if speechText := buildSpeechText(question); speechText != "" {
		go s.generateAudio(bg, session.ID, slot, question, epoch, speechText)
	} else {
		slot.deliver(epoch, func(b *QuestionMedia) { b.AudioReady = true })
	}

	return nil
}

// GetMedia returns the media bundle for the question at index, only if
// the caller's epoch matches the session's current navigation epoch.
func (s *mediaService) GetMedia(ctx context.Context, userID, sessionID string, index int, epoch int64) (*QuestionMedia, error) {
	session, err := s.repo.Session().GetByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, NewPermissionError(userID, sessionID, "session", "fetch media", "not owned by user")
	}
	if epoch != session.MediaEpoch || index != session.CurrentQuestionIndex {
		return nil, ErrStaleMediaEpoch
	}

	s.mu.Lock()
	slot, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrMediaNotReady
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.bundle == nil || slot.epoch != epoch {
		return nil, ErrMediaNotReady
	}

	copied := *slot.bundle
	return &copied, nil
}

func (s *mediaService) ReleaseSession(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// ===== INTERNAL =====

func (s *mediaService) slotFor(sessionID string) *mediaSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.sessions[sessionID]
	if !ok {
		slot = &mediaSlot{}
		s.sessions[sessionID] = slot
	}
	return slot
}

// deliver applies fn to the bundle only while the slot is still on the
// given epoch. Stale deliveries are dropped.
func (slot *mediaSlot) deliver(epoch int64, fn func(*QuestionMedia)) bool {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.bundle == nil || slot.epoch != epoch {
		return false
	}
	fn(slot.bundle)
	return true
}

func (s *mediaService) generateImages(ctx context.Context, sessionID string, slot *mediaSlot, q models.Question, epoch int64) {
	var stem *MediaImage
	if q.ImagePrompt != "" {
		if img, err := s.client.GenerateImage(ctx, q.ImagePrompt); err != nil {
			s.logger.Warn("stem image generation failed",
				"session_id", sessionID, "question_id", q.ID, "error", err)
		} else if img != nil {
			stem = &MediaImage{Data: img.Data, MimeType: img.MimeType}
		}
	}

	var optionImages []*MediaImage
	if len(q.OptionImagePrompts) > 0 {
		optionImages = make([]*MediaImage, len(q.OptionImagePrompts))
		var wg sync.WaitGroup
		for i, prompt := range q.OptionImagePrompts {
			if prompt == "" {
				continue
			}
			wg.Add(1)
			go func(i int, prompt string) {
				defer wg.Done()
				img, err := s.client.GenerateImage(ctx, prompt)
				if err != nil {
					s.logger.Warn("option image generation failed",
						"session_id", sessionID, "question_id", q.ID, "option", i, "error", err)
					return
				}
				if img != nil {
					optionImages[i] = &MediaImage{Data: img.Data, MimeType: img.MimeType}
				}
			}(i, prompt)
		}
		wg.Wait()
	}

	delivered := slot.deliver(epoch, func(b *QuestionMedia) {
		b.StemImage = stem
		b.OptionImages = optionImages
		b.ImagesReady = true
	})
	if !delivered {
		s.logger.Debug("discarding stale images",
			"session_id", sessionID, "question_id", q.ID, "epoch", epoch)
	}
}

func (s *mediaService) generateAudio(ctx context.Context, sessionID string, slot *mediaSlot, q models.Question, epoch int64, text string) {
	clip, err := s.client.GenerateSpeech(ctx, genai.SpeechRequest{Text: text})
	if err != nil {
		s.logger.Warn("speech synthesis failed",
			"session_id", sessionID, "question_id", q.ID, "error", err)
		slot.deliver(epoch, func(b *QuestionMedia) { b.AudioReady = true })
		return
	}

	var audio *MediaAudio
	if clip != nil {
		audio = &MediaAudio{
			Samples:    clip.Channels,
			SampleRate: clip.SampleRate,
			DurationMs: clip.Duration().Milliseconds(),
		}
	}

	delivered := slot.deliver(epoch, func(b *QuestionMedia) {
		b.Audio = audio
		b.AudioReady = true
	})
	if !delivered {
		s.logger.Debug("discarding stale audio",
			"session_id", sessionID, "question_id", q.ID, "epoch", epoch)
	}
}

// buildSpeechText assembles what the synthesized voice reads. For the
// spoken-options variant the voice reads the question and each option;
// otherwise it reads the dialogue transcript. Reading questions are
// silent.
func buildSpeechText(q models.Question) string {
	if q.Type != models.QuestionListening {
		return ""
	}
	if q.SpokenOptions {
		var b strings.Builder
		b.WriteString(q.QuestionText)
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
		}
		return b.String()
	}
	if q.Context != nil && q.Context.Dialogue != "" {
		return q.Context.Dialogue
	}
	return q.QuestionText
}
