package app

import (
	"github.com/specialistvlad/convergo/internal/registry"
	"github.com/specialistvlad/convergo/modules/env_vars"
	"github.com/specialistvlad/convergo/modules/hosts"
	"github.com/specialistvlad/convergo/modules/peers"
)

// coreModules is the definitive list of all reactor modules compiled into
// the convergo binary.
var coreModules = []registry.Module{
	&env_vars.Module{},
	&hosts.Module{},
	&peers.Module{},
}
