package registry

import (
	"github.com/jobdeck/automation/pkg/actions/assign"
	"github.com/jobdeck/automation/pkg/actions/delay"
	"github.com/jobdeck/automation/pkg/actions/email"
	"github.com/jobdeck/automation/pkg/actions/record"
	"github.com/jobdeck/automation/pkg/actions/status"
	"github.com/jobdeck/automation/pkg/models"
	"github.com/jobdeck/automation/pkg/protocol"
)

// Collaborators are the host application's side-effect boundaries injected
// into the built-in handlers.
type Collaborators struct {
	Records   protocol.RecordStore
	Mailer    protocol.Mailer
	Directory protocol.UserDirectory
}

// RegisterDefaults registers one factory per action type. Every member of
// models.KnownActionTypes must be covered here; the registry test enforces
// that, so adding an action type without a handler fails fast.
func RegisterDefaults(r *Registry, c Collaborators) {
	r.Register(record.NewFactory(models.ActionCreateProject, protocol.RecordProject, c.Records))
	r.Register(record.NewFactory(models.ActionCreateServiceOrder, protocol.RecordServiceOrder, c.Records))
	r.Register(record.NewFactory(models.ActionCreateInvoice, protocol.RecordInvoice, c.Records))
	r.Register(record.NewFactory(models.ActionCreateTask, protocol.RecordTask, c.Records))
	r.Register(record.NewFactory(models.ActionCreateChecklist, protocol.RecordChecklist, c.Records))
	r.Register(record.NewFactory(models.ActionCreateNote, protocol.RecordNote, c.Records))

	r.Register(status.NewFactory(models.ActionUpdateStatus, c.Records))
	r.Register(status.NewFactory(models.ActionUpdateTicketStatus, c.Records))

	r.Register(email.NewFactory(models.ActionSendEmail, c.Mailer))
	r.Register(email.NewFactory(models.ActionSendHelpdeskEmail, c.Mailer))

	r.Register(assign.NewFactory(models.ActionAssignUser, c.Records, c.Directory))
	r.Register(assign.NewFactory(models.ActionAssignTicket, c.Records, c.Directory))

	r.Register(delay.NewFactory())
}
