package repository

import (
	"gorm.io/gorm"

	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/models"
)

type Repositories struct {
	MailAccountRepository    interfaces.MailAccountRepository
	MessageRepository        interfaces.MessageRepository
	AttachmentRepository     interfaces.AttachmentRepository
	AnalysisRecordRepository interfaces.AnalysisRecordRepository
}

// InitRepositories wires all repositories against the database. The
// attachment repository optionally offloads payloads to object storage.
func InitRepositories(db *gorm.DB, attachmentStorage interfaces.StorageService) *Repositories {
	return &Repositories{
		MailAccountRepository:    NewMailAccountRepository(db),
		MessageRepository:        NewMessageRepository(db),
		AttachmentRepository:     NewAttachmentRepository(db, attachmentStorage),
		AnalysisRecordRepository: NewAnalysisRecordRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MailAccount{},
		&models.Message{},
		&models.Attachment{},
		&models.AnalysisRecord{},
	)
}
