package service

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/apperrors"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/models"
	"github.com/almakhlifi/peer-validated-qa-platform-sub001/internal/repository"
)

// ThreadService handles questions, answers and the threaded view
type ThreadService struct {
	db           *sql.DB
	questionRepo *repository.QuestionRepository
	answerRepo   *repository.AnswerRepository
	reviewRepo   *repository.ReviewRepository
	audit        *AuditService
}

// NewThreadService creates a new thread service
func NewThreadService(
	db *sql.DB,
	questionRepo *repository.QuestionRepository,
	answerRepo *repository.AnswerRepository,
	reviewRepo *repository.ReviewRepository,
	audit *AuditService,
) *ThreadService {
	return &ThreadService{
		db:           db,
		questionRepo: questionRepo,
		answerRepo:   answerRepo,
		reviewRepo:   reviewRepo,
		audit:        audit,
	}
}

// CreateQuestion posts a new question
func (s *ThreadService) CreateQuestion(author, title, content string, tags []string) (*models.Question, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return nil, apperrors.Validation("title is required")
	}
	if content == "" {
		return nil, apperrors.Validation("content is required")
	}

	q := &models.Question{Title: title, Content: content, Author: author, Tags: tags}
	if err := s.questionRepo.Create(q); err != nil {
		return nil, apperrors.Persistence(err, "failed to create question")
	}

	slog.Info("Question created", "id", q.ID, "author", author)
	return q, nil
}

// GetQuestion retrieves a single question
func (s *ThreadService) GetQuestion(id int64) (*models.Question, error) {
	q, err := s.questionRepo.GetByID(id)
	if errors.Is(err, repository.ErrQuestionNotFound) {
		return nil, apperrors.NotFound("question %d not found", id)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load question")
	}
	return q, nil
}

// UpdateQuestion replaces a question's title, content and tags. Only the
// author may update.
func (s *ThreadService) UpdateQuestion(actor string, id int64, title, content string, tags []string) (*models.Question, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" {
		return nil, apperrors.Validation("title is required")
	}
	if content == "" {
		return nil, apperrors.Validation("content is required")
	}

	q, err := s.GetQuestion(id)
	if err != nil {
		return nil, err
	}
	if q.Author != actor {
		return nil, apperrors.Forbidden("only the author can update a question")
	}

	if err := s.questionRepo.Update(id, title, content, tags); err != nil {
		return nil, apperrors.Persistence(err, "failed to update question")
	}

	return s.GetQuestion(id)
}

// ListQuestions retrieves all questions, newest first
func (s *ThreadService) ListQuestions() ([]models.Question, error) {
	questions, err := s.questionRepo.GetAll()
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to list questions")
	}
	return questions, nil
}

// FilterByTag retrieves questions carrying the given tag
func (s *ThreadService) FilterByTag(tag string) ([]models.Question, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, apperrors.Validation("tag is required")
	}

	questions, err := s.questionRepo.FilterByTag(tag)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to filter questions")
	}
	return questions, nil
}

// Search finds questions whose title, content or any answer content contains
// the keyword, case-insensitively. Each question appears once no matter how
// many of its answers match.
func (s *ThreadService) Search(keyword string) ([]models.Question, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, apperrors.Validation("search keyword is required")
	}

	questions, err := s.questionRepo.Search(keyword)
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to search questions")
	}
	return questions, nil
}

// CreateAnswer posts an answer to a question, or a reply when parentID is
// set. The parent must belong to the same question.
func (s *ThreadService) CreateAnswer(author string, questionID int64, content string, parentID *int64) (*models.Answer, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("content is required")
	}

	if _, err := s.GetQuestion(questionID); err != nil {
		return nil, err
	}

	if parentID != nil {
		parent, err := s.answerRepo.GetByID(*parentID)
		if errors.Is(err, repository.ErrAnswerNotFound) {
			return nil, apperrors.NotFound("parent answer %d not found", *parentID)
		}
		if err != nil {
			return nil, apperrors.Persistence(err, "failed to load parent answer")
		}
		if parent.QuestionID != questionID {
			return nil, apperrors.Validation("parent answer belongs to a different question")
		}
	}

	a := &models.Answer{QuestionID: questionID, Content: content, Author: author, ParentAnswerID: parentID}
	if err := s.answerRepo.Create(a); err != nil {
		return nil, apperrors.Persistence(err, "failed to create answer")
	}

	slog.Info("Answer created", "id", a.ID, "question_id", questionID, "author", author)
	return a, nil
}

// UpdateAnswer replaces an answer's content. Only the author may update.
func (s *ThreadService) UpdateAnswer(actor string, id int64, content string) (*models.Answer, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("content is required")
	}

	a, err := s.answerRepo.GetByID(id)
	if errors.Is(err, repository.ErrAnswerNotFound) {
		return nil, apperrors.NotFound("answer %d not found", id)
	}
	if err != nil {
		return nil, apperrors.Persistence(err, "failed to load answer")
	}
	if a.Author != actor {
		return nil, apperrors.Forbidden("only the author can update an answer")
	}

	if err := s.answerRepo.UpdateContent(id, content); err != nil {
		return nil, apperrors.Persistence(err, "failed to update answer")
	}

	a.Content = content
	return a, nil
}

// LoadThread retrieves a question together with its answers nested by reply
// structure. Top-level answers form a forest ordered by id.
func (s *ThreadService) LoadThread(questionID int64) (*models.Question, []*models.AnswerNode, error) {
	q, err := s.GetQuestion(questionID)
	if err != nil {
		return nil, nil, err
	}

	answers, err := s.answerRepo.ListByQuestion(questionID)
	if err != nil {
		return nil, nil, apperrors.Persistence(err, "failed to load answers")
	}

	return q, buildAnswerTree(answers), nil
}

// buildAnswerTree nests a flat answer list by parent pointers in two passes:
// first every answer gets a node, then each node attaches to its parent or to
// the root list. A parent id pointing outside the set (cannot happen through
// CreateAnswer) demotes the node to a root rather than dropping it.
func buildAnswerTree(answers []models.Answer) []*models.AnswerNode {
	nodes := make(map[int64]*models.AnswerNode, len(answers))
	for i := range answers {
		nodes[answers[i].ID] = &models.AnswerNode{Answer: answers[i]}
	}

	var roots []*models.AnswerNode
	for i := range answers {
		node := nodes[answers[i].ID]
		if pid := answers[i].ParentAnswerID; pid != nil {
			if parent, ok := nodes[*pid]; ok {
				parent.Replies = append(parent.Replies, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	return roots
}

// MarkAccepted marks an answer as the accepted one. Only the question's
// author may accept, and the answer must belong to the question.
func (s *ThreadService) MarkAccepted(actor string, questionID, answerID int64) error {
	q, err := s.GetQuestion(questionID)
	if err != nil {
		return err
	}
	if q.Author != actor {
		return apperrors.Forbidden("only the question author can accept an answer")
	}

	a, err := s.answerRepo.GetByID(answerID)
	if errors.Is(err, repository.ErrAnswerNotFound) {
		return apperrors.NotFound("answer %d not found", answerID)
	}
	if err != nil {
		return apperrors.Persistence(err, "failed to load answer")
	}
	if a.QuestionID != questionID {
		return apperrors.Validation("answer belongs to a different question")
	}

	if err := s.questionRepo.SetAcceptedAnswer(questionID, &answerID); err != nil {
		return apperrors.Persistence(err, "failed to mark accepted answer")
	}

	return nil
}

// ClearAccepted removes the accepted-answer mark. Author only.
func (s *ThreadService) ClearAccepted(actor string, questionID int64) error {
	q, err := s.GetQuestion(questionID)
	if err != nil {
		return err
	}
	if q.Author != actor {
		return apperrors.Forbidden("only the question author can clear the accepted answer")
	}

	if err := s.questionRepo.SetAcceptedAnswer(questionID, nil); err != nil {
		return apperrors.Persistence(err, "failed to clear accepted answer")
	}

	return nil
}

// DeleteQuestion removes a question, its answers and every review targeting
// the question or any of its answers. Reviews have no FK cascade; the cleanup
// happens in the same transaction as the delete so no orphaned review can
// survive. The author or an admin may delete.
func (s *ThreadService) DeleteQuestion(actor string, isAdmin bool, questionID int64) error {
	q, err := s.GetQuestion(questionID)
	if err != nil {
		return err
	}
	if q.Author != actor && !isAdmin {
		return apperrors.Forbidden("only the author or an admin can delete a question")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Persistence(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	answerIDs, err := s.answerRepo.IDsByQuestionTx(tx, questionID)
	if err != nil {
		return apperrors.Persistence(err, "failed to collect answer ids")
	}

	removedReviews, err := s.reviewRepo.DeleteForQuestionTx(tx, questionID, answerIDs)
	if err != nil {
		return apperrors.Persistence(err, "failed to clean up reviews")
	}

	if err := s.questionRepo.DeleteTx(tx, questionID); err != nil {
		return apperrors.Persistence(err, "failed to delete question")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Persistence(err, "failed to commit deletion")
	}

	s.audit.Record(actor, "question.delete", fmt.Sprintf("question/%d", questionID),
		fmt.Sprintf("answers=%d reviews=%d", len(answerIDs), removedReviews))
	slog.Info("Question deleted", "id", questionID, "actor", actor,
		"answers", len(answerIDs), "reviews_removed", removedReviews)
	return nil
}

// DeleteAnswer removes an answer, its transitive replies and every review
// targeting any answer in that subtree. The reply cascade is taken by the FK;
// the subtree is collected first because reviews need manual cleanup.
func (s *ThreadService) DeleteAnswer(actor string, isAdmin bool, answerID int64) error {
	a, err := s.answerRepo.GetByID(answerID)
	if errors.Is(err, repository.ErrAnswerNotFound) {
		return apperrors.NotFound("answer %d not found", answerID)
	}
	if err != nil {
		return apperrors.Persistence(err, "failed to load answer")
	}
	if a.Author != actor && !isAdmin {
		return apperrors.Forbidden("only the author or an admin can delete an answer")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Persistence(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	subtree, err := s.answerRepo.SubtreeIDsTx(tx, answerID)
	if err != nil {
		return apperrors.Persistence(err, "failed to collect answer subtree")
	}

	removedReviews, err := s.reviewRepo.DeleteForAnswersTx(tx, subtree)
	if err != nil {
		return apperrors.Persistence(err, "failed to clean up reviews")
	}

	if err := s.questionRepo.ClearAcceptedForAnswersTx(tx, subtree); err != nil {
		return apperrors.Persistence(err, "failed to clear accepted answer")
	}

	if err := s.answerRepo.DeleteTx(tx, answerID); err != nil {
		return apperrors.Persistence(err, "failed to delete answer")
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Persistence(err, "failed to commit deletion")
	}

	slog.Info("Answer deleted", "id", answerID, "actor", actor,
		"subtree", len(subtree), "reviews_removed", removedReviews)
	return nil
}
