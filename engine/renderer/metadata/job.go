package metadata

/**
 * @brief Describes a job to be run by the upload system.
 */
type JobTask struct {
	/** @brief A debug name used in logs. */
	Name string
	/** @brief Invoked on a worker goroutine. Required. */
	OnStart func() error
	/** @brief Invoked when OnStart succeeded. Optional. */
	OnComplete func()
	/** @brief Invoked with the error returned by OnStart. Optional. */
	OnFailure func(error)
	/** @brief Always invoked last, whatever the outcome. Optional. */
	OnCompletionCallback func()
}
