package config

import (
	_ "github.com/any-hub/maven-hub/internal/hubmodule/gradle"
	_ "github.com/any-hub/maven-hub/internal/hubmodule/maven"
)
