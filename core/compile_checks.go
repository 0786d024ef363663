package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Stores          = (*MemoryStore)(nil)
	_ Session         = (*MemorySession)(nil)
	_ AccountFactory  = DefaultAccountFactory{}
	_ AccountFactory  = AccountFactoryFunc(nil)
	_ Notifier        = NopNotifier{}
	_ Notifier        = MultiNotifier(nil)
	_ Notifier        = (*OutboxNotifier)(nil)
	_ Notifier        = NotifierFunc(nil)
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
