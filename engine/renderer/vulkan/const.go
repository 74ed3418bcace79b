package vulkan

/**
 * @brief Binding of the sampler array in the bindless set
 */
const BINDLESS_SAMPLER_BINDING uint32 = 0

/**
 * @brief Binding of the sampled image array in the bindless set
 */
const BINDLESS_SAMPLED_IMAGE_BINDING uint32 = 1

/**
 * @brief Binding of the storage image array in the bindless set
 */
const BINDLESS_STORAGE_IMAGE_BINDING uint32 = 2

/**
 * @brief Binding of the storage buffer array in the bindless set
 */
const BINDLESS_STORAGE_BUFFER_BINDING uint32 = 3
