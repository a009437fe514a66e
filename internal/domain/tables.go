package domain

var Tables = []interface{}{
	// System
	&SysOpr{},
	&SysOprLog{},
	// Chat
	&ChatAccount{},
	&ChatMessage{},
	&ChatConversation{},
	&ChatContact{},
	&ChatWebhook{},
}
