package repositories

import (
	"os"
	"time"

	"taskbot-project/taskbot-service/logging"
	"taskbot-project/taskbot-service/models"

	"github.com/gocql/gocql"
)

// NotificationRepo stores the delivered-DM audit log in Cassandra, keyed
// per user so the Home tab inbox can read it back in reverse order.
type NotificationRepo struct {
	session *gocql.Session
}

func NewNotificationRepo() (*NotificationRepo, error) {
	db := os.Getenv("CASS_DB")
	if db == "" {
		db = "127.0.0.1"
	}

	cluster := gocql.NewCluster(db)
	cluster.Keyspace = "system"
	session, err := cluster.CreateSession()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_CONNECT_FAILED, Description: %v", err)
		return nil, err
	}

	err = session.Query(
		`CREATE KEYSPACE IF NOT EXISTS taskbot
         WITH replication = {
             'class': 'SimpleStrategy',
             'replication_factor': 1
         }`).Exec()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_KEYSPACE_FAILED, Description: %v", err)
		return nil, err
	}
	session.Close()

	cluster.Keyspace = "taskbot"
	cluster.Consistency = gocql.One
	session, err = cluster.CreateSession()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_KEYSPACE_CONNECT_FAILED, Description: %v", err)
		return nil, err
	}

	logging.Logger.Info("Event ID: CASSANDRA_CONNECTED, Description: Connected to Cassandra taskbot keyspace.")
	return &NotificationRepo{session: session}, nil
}

func (nr *NotificationRepo) CloseSession() {
	nr.session.Close()
	logging.Logger.Info("Event ID: CASSANDRA_SESSION_CLOSED, Description: Cassandra session closed.")
}

func (nr *NotificationRepo) CreateTable() {
	err := nr.session.Query(
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID,
			team_id TEXT,
			user_id TEXT,
			task_id TEXT,
			kind TEXT,
			message TEXT,
			created_at TIMESTAMP,
			is_read BOOLEAN,
			PRIMARY KEY ((user_id), created_at, id)
		) WITH CLUSTERING ORDER BY (created_at DESC, id ASC)`).Exec()
	if err != nil {
		logging.Logger.Errorf("Event ID: CASSANDRA_TABLE_FAILED, Description: Failed to create notifications table: %v", err)
	} else {
		logging.Logger.Info("Event ID: CASSANDRA_TABLE_READY, Description: Notifications table created successfully!")
	}
}

func (nr *NotificationRepo) CreateNotification(notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = gocql.TimeUUID().String()
	}

	err := nr.session.Query(
		`INSERT INTO notifications (id, team_id, user_id, task_id, kind, message, created_at, is_read)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		notification.ID, notification.TeamID, notification.UserID, notification.TaskID,
		string(notification.Kind), notification.Message, notification.CreatedAt, notification.IsRead,
	).Exec()
	if err != nil {
		logging.Logger.Errorf("Event ID: NOTIFICATION_INSERT_FAILED, Description: %v", err)
		return err
	}
	return nil
}

func (nr *NotificationRepo) GetNotificationsByUser(userID string) ([]models.Notification, error) {
	query := `SELECT id, team_id, user_id, task_id, kind, message, created_at, is_read
			  FROM notifications WHERE user_id = ?`

	iter := nr.session.Query(query, userID).Iter()
	var notifications []models.Notification
	var n models.Notification
	var kind string

	for iter.Scan(&n.ID, &n.TeamID, &n.UserID, &n.TaskID, &kind, &n.Message, &n.CreatedAt, &n.IsRead) {
		n.Kind = models.NotificationKind(kind)
		notifications = append(notifications, n)
	}

	if err := iter.Close(); err != nil {
		logging.Logger.Errorf("Event ID: NOTIFICATION_FETCH_FAILED, Description: %v", err)
		return nil, err
	}

	return notifications, nil
}

func (nr *NotificationRepo) MarkNotificationAsRead(userID, notificationID, createdAt string) error {
	uuid, err := gocql.ParseUUID(notificationID)
	if err != nil {
		logging.Logger.Errorf("Event ID: NOTIFICATION_BAD_UUID, Description: %v", err)
		return err
	}

	parsedCreatedAt, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		logging.Logger.Errorf("Event ID: NOTIFICATION_BAD_TIMESTAMP, Description: %v", err)
		return err
	}

	query := `UPDATE notifications SET is_read = true WHERE user_id = ? AND id = ? AND created_at = ?`
	err = nr.session.Query(query, userID, uuid, parsedCreatedAt).Exec()
	if err != nil {
		logging.Logger.Errorf("Event ID: NOTIFICATION_UPDATE_FAILED, Description: %v", err)
		return err
	}
	return nil
}
