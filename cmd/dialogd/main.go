// Command dialogd is the standalone server bootstrap for dialog,
// adapted from kdbd/main.go: read a JSON config, construct the Store
// Registry, and listen for DDP RPC traffic.
package main

func main() {
	config, err := readConfigFile()
	if err != nil {
		panic(err)
	}

	st := newConfiguredStore(config)

	s := newRPCServer(config.DDPAddress, st, config.MaxConcurrency, config.IteratorBatchSize)
	s.Listen()
}
