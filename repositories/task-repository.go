package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskbot-project/taskbot-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type TaskRepository struct {
	tasksCollection       *mongo.Collection
	targetsCollection     *mongo.Collection
	completionsCollection *mongo.Collection
}

func NewTaskRepository(db *mongo.Database) *TaskRepository {
	return &TaskRepository{
		tasksCollection:       db.Collection("tasks"),
		targetsCollection:     db.Collection("task_targets"),
		completionsCollection: db.Collection("task_completions"),
	}
}

// EnsureIndexes creates the unique indexes the idempotent writes rely on.
func (r *TaskRepository) EnsureIndexes(ctx context.Context) error {
	taskUser := mongo.IndexModel{
		Keys:    bson.D{{Key: "taskId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.targetsCollection.Indexes().CreateOne(ctx, taskUser); err != nil {
		return fmt.Errorf("failed to create task_targets index: %v", err)
	}
	if _, err := r.completionsCollection.Indexes().CreateOne(ctx, taskUser); err != nil {
		return fmt.Errorf("failed to create task_completions index: %v", err)
	}
	return nil
}

// CreateTask inserts a new task, assigning id and timestamps. Type-specific
// fields are validated here: a personal task must carry an assignee, a
// broadcast task must carry counts.
func (r *TaskRepository) CreateTask(ctx context.Context, task *models.Task) (*models.Task, error) {
	switch task.TaskType {
	case models.TypePersonal:
		if task.AssigneeID == "" {
			return nil, fmt.Errorf("personal task requires an assignee: %w", models.ErrInvalidInput)
		}
		if task.TotalCount != nil || task.CompletedCount != nil {
			return nil, fmt.Errorf("personal task must not carry counts: %w", models.ErrInvalidInput)
		}
	case models.TypeBroadcast:
		if task.TotalCount == nil || task.CompletedCount == nil {
			return nil, fmt.Errorf("broadcast task requires counts: %w", models.ErrInvalidInput)
		}
		if task.AssigneeID != "" {
			return nil, fmt.Errorf("broadcast task must not carry an assignee: %w", models.ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("unknown task type %q: %w", task.TaskType, models.ErrInvalidInput)
	}
	if task.TeamID == "" {
		return nil, fmt.Errorf("teamId is required: %w", models.ErrInvalidInput)
	}

	now := time.Now()
	task.ID = primitive.NewObjectID()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.StatusOpen
	}

	result, err := r.tasksCollection.InsertOne(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %v", err)
	}
	task.ID = result.InsertedID.(primitive.ObjectID)
	return task, nil
}

func (r *TaskRepository) GetTask(ctx context.Context, teamID string, taskID primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	err := r.tasksCollection.FindOne(ctx, bson.M{"_id": taskID, "teamId": teamID}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("task %s: %w", taskID.Hex(), models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch task: %v", err)
	}
	return &task, nil
}

// UpdateStatus writes the next status. It stamps completedAt when moving
// into done and nothing otherwise. Transition legality is the lifecycle
// controller's job, not this layer's.
func (r *TaskRepository) UpdateStatus(ctx context.Context, teamID string, taskID primitive.ObjectID, next models.TaskStatus) (*models.Task, error) {
	set := bson.M{"status": next, "updatedAt": time.Now()}
	if next == models.StatusDone {
		set["completedAt"] = time.Now()
	}

	result, err := r.tasksCollection.UpdateOne(ctx, bson.M{"_id": taskID, "teamId": teamID}, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("failed to update task status: %v", err)
	}
	if result.MatchedCount == 0 {
		return nil, fmt.Errorf("task %s: %w", taskID.Hex(), models.ErrNotFound)
	}
	return r.GetTask(ctx, teamID, taskID)
}

// UpdateStatusGuarded writes the next status only while the current
// status is one of from. Racing writers cannot regress a task that has
// already advanced; the caller learns from the return whether its write
// landed.
func (r *TaskRepository) UpdateStatusGuarded(ctx context.Context, teamID string, taskID primitive.ObjectID, from []models.TaskStatus, next models.TaskStatus) (bool, error) {
	set := bson.M{"status": next, "updatedAt": time.Now()}
	if next == models.StatusDone {
		set["completedAt"] = time.Now()
	}

	filter := bson.M{"_id": taskID, "teamId": teamID, "status": bson.M{"$in": from}}
	result, err := r.tasksCollection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to update task status: %v", err)
	}
	return result.MatchedCount == 1, nil
}

// ContentPatch carries a partial edit. DueDateSet distinguishes "field
// omitted" from "field explicitly cleared"; AssigneeID and Description
// cannot be cleared, so first-non-nil-wins applies to them.
type ContentPatch struct {
	AssigneeID  *string
	Description *string
	DueDate     *time.Time
	DueDateSet  bool
}

func (r *TaskRepository) UpdateContent(ctx context.Context, teamID string, taskID primitive.ObjectID, patch ContentPatch) (*models.Task, error) {
	set := bson.M{"updatedAt": time.Now()}
	unset := bson.M{}

	if patch.AssigneeID != nil {
		set["assigneeId"] = *patch.AssigneeID
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.DueDateSet {
		if patch.DueDate != nil {
			set["dueDate"] = *patch.DueDate
		} else {
			unset["dueDate"] = ""
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := r.tasksCollection.UpdateOne(ctx, bson.M{"_id": taskID, "teamId": teamID}, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update task content: %v", err)
	}
	if result.MatchedCount == 0 {
		return nil, fmt.Errorf("task %s: %w", taskID.Hex(), models.ErrNotFound)
	}
	return r.GetTask(ctx, teamID, taskID)
}

func (r *TaskRepository) CancelTask(ctx context.Context, teamID string, taskID primitive.ObjectID, actorUserID string) (*models.Task, error) {
	now := time.Now()
	update := bson.M{"$set": bson.M{
		"status":        models.StatusCancelled,
		"cancelledAt":   now,
		"cancelledById": actorUserID,
		"updatedAt":     now,
	}}

	result, err := r.tasksCollection.UpdateOne(ctx, bson.M{"_id": taskID, "teamId": teamID}, update)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel task: %v", err)
	}
	if result.MatchedCount == 0 {
		return nil, fmt.Errorf("task %s: %w", taskID.Hex(), models.ErrNotFound)
	}
	return r.GetTask(ctx, teamID, taskID)
}

// InsertTargets snapshots the addressed users of a broadcast task.
// Duplicate (taskId, userId) pairs are silently ignored.
func (r *TaskRepository) InsertTargets(ctx context.Context, teamID string, taskID primitive.ObjectID, userIDs []string) error {
	for _, userID := range userIDs {
		filter := bson.M{"taskId": taskID, "userId": userID}
		update := bson.M{"$setOnInsert": bson.M{
			"teamId":    teamID,
			"taskId":    taskID,
			"userId":    userID,
			"createdAt": time.Now(),
		}}
		_, err := r.targetsCollection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("failed to insert target %s: %v", userID, err)
		}
	}
	return nil
}

// RecordCompletion marks one target's portion as done. Completing twice
// is a no-op, not an error.
func (r *TaskRepository) RecordCompletion(ctx context.Context, teamID string, taskID primitive.ObjectID, userID string) error {
	filter := bson.M{"taskId": taskID, "userId": userID}
	update := bson.M{"$setOnInsert": bson.M{
		"teamId":      teamID,
		"taskId":      taskID,
		"userId":      userID,
		"completedAt": time.Now(),
	}}
	_, err := r.completionsCollection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to record completion for %s: %v", userID, err)
	}
	return nil
}

// ListTargets returns the snapshotted target user ids of a broadcast task.
func (r *TaskRepository) ListTargets(ctx context.Context, teamID string, taskID primitive.ObjectID) ([]string, error) {
	cursor, err := r.targetsCollection.Find(ctx, bson.M{"teamId": teamID, "taskId": taskID})
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %v", err)
	}
	var targets []models.TaskTarget
	if err := cursor.All(ctx, &targets); err != nil {
		return nil, fmt.Errorf("failed to decode targets: %v", err)
	}
	userIDs := make([]string, 0, len(targets))
	for _, t := range targets {
		userIDs = append(userIDs, t.UserID)
	}
	return userIDs, nil
}

func (r *TaskRepository) CountTargets(ctx context.Context, teamID string, taskID primitive.ObjectID) (int, error) {
	n, err := r.targetsCollection.CountDocuments(ctx, bson.M{"teamId": teamID, "taskId": taskID})
	if err != nil {
		return 0, fmt.Errorf("failed to count targets: %v", err)
	}
	return int(n), nil
}

func (r *TaskRepository) CountCompletions(ctx context.Context, teamID string, taskID primitive.ObjectID) (int, error) {
	n, err := r.completionsCollection.CountDocuments(ctx, bson.M{"teamId": teamID, "taskId": taskID})
	if err != nil {
		return 0, fmt.Errorf("failed to count completions: %v", err)
	}
	return int(n), nil
}

func (r *TaskRepository) IsTarget(ctx context.Context, teamID string, taskID primitive.ObjectID, userID string) (bool, error) {
	n, err := r.targetsCollection.CountDocuments(ctx, bson.M{"teamId": teamID, "taskId": taskID, "userId": userID})
	if err != nil {
		return false, fmt.Errorf("failed to check target: %v", err)
	}
	return n > 0, nil
}

func (r *TaskRepository) HasCompleted(ctx context.Context, teamID string, taskID primitive.ObjectID, userID string) (bool, error) {
	n, err := r.completionsCollection.CountDocuments(ctx, bson.M{"teamId": teamID, "taskId": taskID, "userId": userID})
	if err != nil {
		return false, fmt.Errorf("failed to check completion: %v", err)
	}
	return n > 0, nil
}

// SetCompletedCount refreshes the denormalized completion count after a
// recount. The count cache is never incremented in place.
func (r *TaskRepository) SetCompletedCount(ctx context.Context, teamID string, taskID primitive.ObjectID, completed int) error {
	update := bson.M{"$set": bson.M{"completedCount": completed, "updatedAt": time.Now()}}
	result, err := r.tasksCollection.UpdateOne(ctx, bson.M{"_id": taskID, "teamId": teamID}, update)
	if err != nil {
		return fmt.Errorf("failed to set completed count: %v", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("task %s: %w", taskID.Hex(), models.ErrNotFound)
	}
	return nil
}

// SetNotifiedAt arms the single-fire notification guard. The write only
// succeeds while notifiedAt is still null, so exactly one of N racing
// callers sees true.
func (r *TaskRepository) SetNotifiedAt(ctx context.Context, teamID string, taskID primitive.ObjectID) (bool, error) {
	filter := bson.M{"_id": taskID, "teamId": teamID, "notifiedAt": nil}
	update := bson.M{"$set": bson.M{"notifiedAt": time.Now(), "updatedAt": time.Now()}}

	result, err := r.tasksCollection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to set notifiedAt: %v", err)
	}
	return result.ModifiedCount == 1, nil
}

// ListTasksForUser returns the tasks a user is involved in as requester,
// assignee, or broadcast target.
func (r *TaskRepository) ListTasksForUser(ctx context.Context, teamID, userID string) ([]*models.Task, error) {
	cursor, err := r.targetsCollection.Find(ctx, bson.M{"teamId": teamID, "userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch targets for user: %v", err)
	}
	var targets []models.TaskTarget
	if err := cursor.All(ctx, &targets); err != nil {
		return nil, fmt.Errorf("failed to decode targets: %v", err)
	}

	taskIDs := make([]primitive.ObjectID, 0, len(targets))
	for _, t := range targets {
		taskIDs = append(taskIDs, t.TaskID)
	}

	filter := bson.M{
		"teamId": teamID,
		"$or": []bson.M{
			{"requesterId": userID},
			{"assigneeId": userID},
			{"_id": bson.M{"$in": taskIDs}},
		},
	}

	cursor, err = r.tasksCollection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tasks for user: %v", err)
	}
	var tasks []*models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %v", err)
	}
	return tasks, nil
}
