package testing

import (
	"os"

	"github.com/veedubyou/stemsplit/src/shared/config/envvar"
)

func SetTestEnv() {
	err := os.Setenv(envvar.ENVIRONMENT, "test")
	if err != nil {
		panic(err)
	}
}
