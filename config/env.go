package config

import "os"

func envSet(k string) bool {
	_, ok := os.LookupEnv(k)
	return ok
}
