package app

import (
	"github.com/vk/forgegrid/internal/handlers"
	"github.com/vk/forgegrid/modules/exec"
)

// coreModules is the definitive list of action-type modules compiled into
// the binary.
var coreModules = []handlers.Module{
	&exec.Module{},
}
