package rest

import (
	"github.com/grabtube/grabtube/server/internal/catalog"
	"github.com/grabtube/grabtube/server/internal/manager"
)

type ContainerArgs struct {
	Manager *manager.Manager
	Catalog *catalog.Catalog
}
