package root

import (
	"github.com/coffeevibes888/rentflowhq-sub007/apps/cli/cmd/lease"
	"github.com/coffeevibes888/rentflowhq-sub007/apps/cli/cmd/migrate"
	outboxcmd "github.com/coffeevibes888/rentflowhq-sub007/apps/cli/cmd/outbox"
)

func init() {
	Root().AddCommand(migrate.Command())
	Root().AddCommand(lease.Command())
	Root().AddCommand(outboxcmd.Command())
}
