// Package tunnel holds the persisted tunnel state and the pieces that keep
// it current.
//
// The engine publishes State values on a stream. A Synchronizer forwards
// every value to a Store, which serializes it with its Codec, persists it
// through a common.KVStore and notifies subscribers only when the persisted
// value actually changed. Read returns Disconnected until the first write.
//
//	store := tunnel.NewStore(backend, tunnel.Codec{})
//	sub := store.Subscribe(func(s tunnel.State) { fmt.Println(s) })
//	defer sub.Unsubscribe()
//
//	sync, err := tunnel.NewSynchronizer(ctx, engine, store)
//	if err != nil {
//	    return err
//	}
//	err = sync.Run(ctx)
//
// Subscribers run synchronously on the writer's goroutine, in subscription
// order, while the store's write lock is held. A subscriber must not call
// Write.
package tunnel
