//go:build axsys && cgo

package main

import (
	"github.com/axsys-go/cmm/driver"
	"github.com/axsys-go/cmm/driver/axsys"
)

func init() {
	platforms["axsys"] = func(*globalConfig) (driver.Driver, func() error, error) {
		return axsys.New(), nil, nil
	}
}
