//go:build !linux

package ddrbw

import "github.com/zedulotech/dpftune/pkg/errs"

func pinToCore(coreID int) error {
	return errs.New(errs.NotAvailable, "core pinning is only implemented on linux")
}
